package envelope

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/chris-alexander-pop/go-service-queue/pkg/blob"
	"github.com/chris-alexander-pop/go-service-queue/pkg/errors"
	"github.com/chris-alexander-pop/go-service-queue/pkg/logger"
	"github.com/chris-alexander-pop/go-service-queue/pkg/resilience"
)

// ObjectStore is the C3 adapter: a thin, content-typed PUT/GET by full key
// over a blob.Store, with optional transparent whole-document at-rest
// encryption via a Cipher.
type ObjectStore struct {
	backend blob.Store
	format  Format
	breaker *resilience.CircuitBreaker
}

// NewObjectStore wraps backend for documents serialized in format.
func NewObjectStore(backend blob.Store, format Format) *ObjectStore {
	return &ObjectStore{
		backend: backend,
		format:  format,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("envelope-object-store")),
	}
}

// PutStoredMessage serializes doc and writes it to key. When encryptAtRest
// is true and cipher/encCfg are non-nil, the serialized bytes are encrypted
// before the PUT so the object at rest is an opaque encrypted blob.
func PutStoredMessage[T any](ctx context.Context, s *ObjectStore, key string, doc *StoredMessage[T], c Cipher, encCfg *EncryptionConfig, encryptAtRest bool) error {
	data, err := EncodeStored(doc, s.format)
	if err != nil {
		return err
	}

	if encryptAtRest && c != nil && encCfg != nil {
		hash, err := c.Encrypt(data, *encCfg)
		if err != nil {
			return errors.Internal("failed to encrypt stored document", err)
		}
		data = []byte(hash)
	}

	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := s.backend.Upload(ctx, key, bytes.NewReader(data)); err != nil {
			return errors.Unavailable("failed to upload stored document", err)
		}
		return nil
	})
}

// GetStoredMessage fetches and deserializes the document at key, reversing
// any at-rest encryption applied by PutStoredMessage.
func GetStoredMessage[T any](ctx context.Context, s *ObjectStore, key string, c Cipher, encCfg *EncryptionConfig, encryptAtRest bool) (*StoredMessage[T], error) {
	var data []byte

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		r, err := s.backend.Download(ctx, key)
		if err != nil {
			if errors.Is(err, errors.CodeNotFound) {
				return errors.NotFound("stored document not found", err)
			}
			return errors.Unavailable("failed to download stored document", err)
		}
		defer r.Close()

		body, err := io.ReadAll(r)
		if err != nil {
			return errors.Internal("failed to read stored document", err)
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, err
	}

	if encryptAtRest && c != nil && encCfg != nil {
		plain, err := c.Decrypt(string(data), *encCfg)
		if err != nil {
			return nil, errors.Internal("failed to decrypt stored document", err)
		}
		data = plain
	}

	return DecodeStored[T](data, s.format)
}

// logWriteBackFailure logs (per the idempotency rule in the subscriber
// state machine) a failed stored-document write-back that occurred after a
// broker ack/reject decision had already been made; the broker decision is
// authoritative and this is not surfaced as a pipeline error.
func logWriteBackFailure(ctx context.Context, endpoint, key string, err error) {
	logger.L().ErrorContext(ctx, "stored document write-back failed after broker decision",
		"endpoint", endpoint,
		"key", key,
		"error", err,
		"at", time.Now().UTC(),
	)
}
