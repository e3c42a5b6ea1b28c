// Package gcs implements blob.Store on top of Google Cloud Storage.
package gcs

import (
	"context"
	"io"

	"cloud.google.com/go/storage"

	"github.com/chris-alexander-pop/go-service-queue/pkg/blob"
	"github.com/chris-alexander-pop/go-service-queue/pkg/errors"
)

// Store implements blob.Store on GCS, using Config.Bucket as the bucket name.
type Store struct {
	client *storage.Client
	bucket string
}

// New creates a new GCS-backed store.
func New(ctx context.Context, cfg blob.Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "bucket is required", nil)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gcs client")
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *Store) Upload(ctx context.Context, key string, data io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return errors.Internal("failed to upload object", err)
	}
	if err := w.Close(); err != nil {
		return errors.Internal("failed to finalize object upload", err)
	}
	return nil
}

func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, errors.NotFound("object not found", err)
		}
		return nil, errors.Internal("failed to download object", err)
	}
	return r, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if err == storage.ErrObjectNotExist {
			return errors.NotFound("object not found", err)
		}
		return errors.Internal("failed to delete object", err)
	}
	return nil
}

func (s *Store) URL(key string) string {
	return "https://storage.googleapis.com/" + s.bucket + "/" + key
}

func (s *Store) Close() error {
	return s.client.Close()
}
