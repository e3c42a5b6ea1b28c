// Package envelope brokers typed messages between application code and an
// AMQP 0-9-1 broker, with optional object-store offload of large payloads
// and optional envelope-preserving symmetric encryption.
//
// A Registry holds named endpoints. Publish and Subscribe operate against
// an endpoint by name, composing per-call overrides with the endpoint's own
// settings and the registry's process-wide defaults.
package envelope

import (
	"time"

	"github.com/chris-alexander-pop/go-service-queue/pkg/blob"
)

// Format selects the wire and at-rest serialization used by an endpoint.
type Format string

const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
)

func (f Format) extension() string {
	if f == FormatXML {
		return ".xml"
	}
	return ".json"
}

func (f Format) contentType() string {
	if f == FormatXML {
		return "application/xml"
	}
	return "application/json"
}

// Message is the in-memory representation of a user payload in transit.
type Message[T any] struct {
	ID        string
	Created   time.Time
	Published *time.Time
	Consumed  *time.Time
	Rejected  *time.Time
	Payload   T

	// StoredRef is the object key the payload was offloaded to, populated
	// only on the publishing side for caller inspection.
	StoredRef *string
}

// StoredMessage is the document persisted in the object store when an
// endpoint has object-store offload enabled. Payload holds the object key
// under which the document itself is stored (invariant: Payload equals the
// key it was PUT under). Envelope holds the original user payload.
type StoredMessage[T any] struct {
	ID             string
	Created        time.Time
	Published      *time.Time
	Consumed       *time.Time
	Rejected       *time.Time
	Acknowledged   *time.Time
	Payload        string
	Envelope       T
	RejectedReason *Reason
}

// EncryptionConfig configures symmetric encryption for an endpoint or call.
type EncryptionConfig struct {
	// Secret is the symmetric key material used to derive the cipher key.
	Secret string

	// SecretRef, if set, names a key resolved through the registry's
	// pkg/secrets.Client instead of supplying Secret inline. It is resolved
	// on every publish and every delivery that uses this config; the
	// resolved secret is not cached.
	SecretRef string

	// Passes is the number of recursive cipher applications. Must match on
	// encode and decode. Defaults to 1 if zero.
	Passes int

	// AtRestOnly scopes this config to offloaded documents at rest: the
	// broker frame stays plaintext (the object key travels in the clear)
	// while ObjectStoreConfig.EncryptAtRest still encrypts the stored
	// document with it. Leave false to also encrypt the wire payload.
	AtRestOnly bool
}

func (c EncryptionConfig) passes() int {
	if c.Passes < 1 {
		return 1
	}
	return c.Passes
}

// transportEncryption narrows cfg to its wire-encryption role: it returns
// nil when no config is present or when the config is scoped to at-rest
// use only.
func transportEncryption(cfg *EncryptionConfig) *EncryptionConfig {
	if cfg == nil || cfg.AtRestOnly {
		return nil
	}
	return cfg
}

// ObjectStoreConfig configures object-store offload for an endpoint or call.
type ObjectStoreConfig struct {
	// Store is the underlying blob backend.
	Store blob.Store

	// BucketPrefix is the leading path segment of every derived object key.
	BucketPrefix string

	// EncryptAtRest transparently wraps the stored document with the
	// endpoint's encryption config before PUT and after GET. When false,
	// the object is the plain serialized document even if transport
	// encryption is configured.
	EncryptAtRest bool
}
