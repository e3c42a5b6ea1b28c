// Package s3 implements blob.Store on top of AWS S3 (and S3-compatible
// endpoints such as MinIO, via Config.Endpoint).
package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/chris-alexander-pop/go-service-queue/pkg/blob"
	"github.com/chris-alexander-pop/go-service-queue/pkg/errors"
)

// Store implements blob.Store on AWS S3.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// New creates a new S3-backed store. If cfg.Endpoint is set, the client
// targets that endpoint with path-style addressing (MinIO/LocalStack).
func New(ctx context.Context, cfg blob.Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "bucket is required", nil)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})

	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

func (s *Store) Upload(ctx context.Context, key string, data io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   data,
	})
	if err != nil {
		return errors.Internal("failed to upload object", err)
	}
	return nil
}

func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NotFound("object not found", err)
		}
		return nil, errors.Internal("failed to download object", err)
	}

	data, err := io.ReadAll(out.Body)
	out.Body.Close()
	if err != nil {
		return nil, errors.Internal("failed to read object stream", err)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return errors.Internal("failed to delete object", err)
	}
	return nil
}

func (s *Store) URL(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func (s *Store) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if stderrors.As(err, &nsk) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	return stderrors.As(err, &respErr) && respErr.HTTPStatusCode() == 404
}
