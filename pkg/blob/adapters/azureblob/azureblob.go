// Package azureblob implements blob.Store on top of Azure Blob Storage.
package azureblob

import (
	"bytes"
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/chris-alexander-pop/go-service-queue/pkg/blob"
	"github.com/chris-alexander-pop/go-service-queue/pkg/errors"
)

// Store implements blob.Store on Azure Blob Storage, using Config.Bucket as
// the container name.
type Store struct {
	client    *azblob.Client
	container string
}

// New creates a new Azure Blob store for the given account and container.
// Credentials are resolved via DefaultAzureCredential.
func New(accountName string, cfg blob.Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "bucket (container) is required", nil)
	}

	url := "https://" + accountName + ".blob.core.windows.net/"

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve azure credentials")
	}

	client, err := azblob.NewClient(url, cred, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create azure blob client")
	}

	return &Store{client: client, container: cfg.Bucket}, nil
}

func (s *Store) Upload(ctx context.Context, key string, data io.Reader) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return errors.Internal("failed to read blob data", err)
	}

	if _, err := s.client.UploadBuffer(ctx, s.container, key, buf, nil); err != nil {
		return errors.Internal("failed to upload blob", err)
	}
	return nil
}

func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, errors.NotFound("blob not found", err)
		}
		return nil, errors.Internal("failed to download blob", err)
	}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, errors.Internal("failed to read blob stream", err)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteBlob(ctx, s.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return errors.NotFound("blob not found", err)
		}
		return errors.Internal("failed to delete blob", err)
	}
	return nil
}

func (s *Store) URL(key string) string {
	return s.client.URL() + s.container + "/" + key
}

func (s *Store) Close() error {
	return nil
}
