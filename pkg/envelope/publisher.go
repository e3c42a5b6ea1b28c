package envelope

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chris-alexander-pop/go-service-queue/pkg/errors"
	"github.com/chris-alexander-pop/go-service-queue/pkg/logger"
)

// PublishOption carries per-call overrides that take priority over the
// endpoint's own settings and the registry's process-wide defaults.
type PublishOption struct {
	Encryption  *EncryptionConfig
	ObjectStore *ObjectStoreConfig
}

// Publish sends value to the named endpoint (or the default endpoint, if
// name is empty), following the six-step publish algorithm:
//
//  1. Construct Message[T] with a fresh id and created=now_utc.
//  2. If the endpoint has object-store config, derive the object key,
//     build and persist the StoredMessage document, and replace the
//     broker-bound payload with the object key.
//  3. If encryption is configured, wrap the broker-bound payload.
//  4. Serialize with the endpoint's format and set content type.
//  5. Publish to the default exchange with routing key = endpoint
//     identifier (queue name), mandatory=true.
//  6. Set Message.Published = now_utc.
func Publish[T any](ctx context.Context, r *Registry, name string, value T, opts ...PublishOption) (*Message[T], error) {
	var opt PublishOption
	if len(opts) > 0 {
		opt = opts[0]
	}

	ctx, span := otel.Tracer("pkg/envelope").Start(ctx, "envelope.Publish")
	defer span.End()

	ep, err := r.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	msg := &Message[T]{
		ID:      uuid.New().String(),
		Created: time.Now().UTC(),
		Payload: value,
	}

	encCfg, err := r.resolveEncryption(ctx, r.composedEncryption(ep.cfg, opt.Encryption))
	if err != nil {
		return nil, err
	}

	var body []byte
	contentType := ep.cfg.format().contentType()
	wireCfg := transportEncryption(encCfg)

	store, osCfg := r.objectStoreFor(ep, opt.ObjectStore)
	if store != nil {
		key := ObjectKey(osCfg.BucketPrefix, ep.cfg.Name, msg.ID, msg.Created, ep.cfg.format())

		doc := &StoredMessage[T]{
			ID:       msg.ID,
			Created:  msg.Created,
			Payload:  key,
			Envelope: msg.Payload,
		}

		if err := PutStoredMessage(ctx, store, key, doc, ep.cipher, encCfg, osCfg.EncryptAtRest); err != nil {
			return nil, errors.Wrap(err, "failed to persist stored message")
		}

		msg.StoredRef = &key

		refMsg := &Message[string]{ID: msg.ID, Created: msg.Created, Payload: key}
		body, err = encodeForTransport(ep.cipher, wireCfg, refMsg, ep.cfg.format())
	} else {
		body, err = encodeForTransport(ep.cipher, wireCfg, msg, ep.cfg.format())
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("endpoint", ep.cfg.Name), attribute.String("message.id", msg.ID))

	if err := ep.transport.Publish(ctx, ep.cfg.Queue, body, contentType); err != nil {
		if msg.StoredRef != nil {
			// The stored document is left in place rather than deleted on
			// this path; the orphaned key is logged so operators can reap it.
			logger.L().WarnContext(ctx, "broker publish failed after stored document was written",
				"endpoint", ep.cfg.Name, "id", msg.ID, "key", *msg.StoredRef)
		}
		return nil, errors.Unavailable("failed to publish message", err)
	}

	published := time.Now().UTC()
	msg.Published = &published

	if !ep.cfg.SuppressLogs {
		logger.L().InfoContext(ctx, "envelope message published",
			"endpoint", ep.cfg.Name, "id", msg.ID, "stored", msg.StoredRef != nil)
	}

	return msg, nil
}

// PublishEncrypted sends a payload the caller has already encrypted with
// the endpoint's cipher, for flows that hold only the opaque hash (the
// plaintext never entered this process). The hash is validated before
// anything reaches the broker; a value the cipher did not produce is a
// configuration error. The hash travels as the frame payload verbatim, so
// no offload or second encryption pass is applied.
func PublishEncrypted(ctx context.Context, r *Registry, name string, hash string) (*Message[string], error) {
	ctx, span := otel.Tracer("pkg/envelope").Start(ctx, "envelope.PublishEncrypted")
	defer span.End()

	ep, err := r.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	if !ep.cipher.Valid(hash) {
		return nil, errors.InvalidArgument("value is not a hash produced by the endpoint cipher", nil)
	}

	msg := &Message[string]{
		ID:      uuid.New().String(),
		Created: time.Now().UTC(),
		Payload: hash,
	}

	body, err := EncodeInline(msg, ep.cfg.format())
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("endpoint", ep.cfg.Name), attribute.String("message.id", msg.ID))

	if err := ep.transport.Publish(ctx, ep.cfg.Queue, body, ep.cfg.format().contentType()); err != nil {
		return nil, errors.Unavailable("failed to publish message", err)
	}

	published := time.Now().UTC()
	msg.Published = &published

	if !ep.cfg.SuppressLogs {
		logger.L().InfoContext(ctx, "envelope message published",
			"endpoint", ep.cfg.Name, "id", msg.ID, "stored", false)
	}

	return msg, nil
}

// encodeForTransport serializes msg for the wire, encrypting the payload
// first when encCfg is non-nil. T is either the user payload type (no
// offload) or string (an object key, when offload is active).
func encodeForTransport[T any](c Cipher, encCfg *EncryptionConfig, msg *Message[T], format Format) ([]byte, error) {
	if encCfg == nil {
		return EncodeInline(msg, format)
	}

	hash, err := EncryptValue(c, msg.Payload, *encCfg)
	if err != nil {
		return nil, errors.Internal("failed to encrypt message payload", err)
	}

	encMsg := &Message[string]{ID: msg.ID, Created: msg.Created, Payload: hash}
	return EncodeInline(encMsg, format)
}
