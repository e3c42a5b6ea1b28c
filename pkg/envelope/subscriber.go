package envelope

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chris-alexander-pop/go-service-queue/pkg/logger"
)

// Handler processes one decoded message. Returning an error rejects the
// delivery; a panic is recovered and treated the same as a returned error,
// with a Reason built from the recovered value.
type Handler[T any] func(ctx context.Context, payload T) error

// SubscribeOption carries per-call subscriber overrides.
type SubscribeOption struct {
	// Requeue controls the requeue flag passed to the broker on rejection.
	// Defaults to false: a handler error is treated as a poison message,
	// not a transient failure.
	Requeue bool

	// Encryption and ObjectStore override the endpoint's own settings and
	// the registry defaults for this subscription.
	Encryption  *EncryptionConfig
	ObjectStore *ObjectStoreConfig
}

// deliveryState names the position of one delivery in the subscriber state
// machine: Received -> Decoded -> Resolved -> Dispatching -> {Acknowledged|Rejected}.
type deliveryState string

const (
	stateReceived    deliveryState = "received"
	stateDecoded     deliveryState = "decoded"
	stateResolved    deliveryState = "resolved"
	stateDispatching deliveryState = "dispatching"
	stateAcked       deliveryState = "acknowledged"
	stateRejected    deliveryState = "rejected"
)

// Subscribe opens a consumer on the named endpoint (or the default
// endpoint, if name is empty) and processes deliveries one at a time until
// ctx is canceled or the transport's delivery channel closes.
//
// Each delivery moves through: Received (raw bytes off the wire), Decoded
// (inline frame parsed, transport encryption reversed), Resolved (object-
// store reference followed to its stored document, if offload is active),
// Dispatching (handler invoked), and finally Acknowledged or Rejected. The
// broker ack/reject decision is always made before any stored-document
// write-back; a write-back failure after that point is logged, never
// propagated, since the broker has already committed to a decision.
func Subscribe[T any](ctx context.Context, r *Registry, name string, handler Handler[T], opts ...SubscribeOption) error {
	var opt SubscribeOption
	if len(opts) > 0 {
		opt = opts[0]
	}

	ep, err := r.resolve(ctx, name)
	if err != nil {
		return err
	}

	deliveries, err := ep.transport.Consume(ctx, ep.cfg.Queue)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			ep.transport.CancelConsume()
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			processDelivery(ctx, r, ep, d, handler, opt)
		}
	}
}

func processDelivery[T any](ctx context.Context, r *Registry, ep *boundEndpoint, d Delivery, handler Handler[T], opt SubscribeOption) {
	ctx, span := otel.Tracer("pkg/envelope").Start(ctx, "envelope.Subscribe.delivery")
	span.SetAttributes(attribute.String("endpoint", ep.cfg.Name))
	defer span.End()

	logState(ctx, ep, d.Tag, stateReceived)
	store, osCfg := r.objectStoreFor(ep, opt.ObjectStore)
	encryptAtRest := osCfg != nil && osCfg.EncryptAtRest

	encCfg, err := r.resolveEncryption(ctx, r.composedEncryption(ep.cfg, opt.Encryption))
	if err != nil {
		rejectDelivery[T](ctx, ep, d.Tag, opt.Requeue, NewReason("failed to resolve encryption secret: "+err.Error()), nil)
		return
	}

	msg, storedKey, err := decodeDelivery[T](ep, d, transportEncryption(encCfg), store != nil)
	if err != nil {
		reason := NewReason("failed to decode delivery: " + err.Error())
		rejectDelivery(ctx, ep, d.Tag, opt.Requeue, reason, recoverStoredRef[T](ctx, ep, store, storedKey, encCfg, encryptAtRest))
		return
	}
	logState(ctx, ep, d.Tag, stateDecoded)

	var storedDoc *StoredMessage[T]
	if storedKey != "" {
		storedDoc, err = GetStoredMessage[T](ctx, store, storedKey, ep.cipher, encCfg, encryptAtRest)
		if err != nil {
			reason := NewReason("failed to resolve stored message: " + err.Error())
			rejectDelivery(ctx, ep, d.Tag, opt.Requeue, reason, recoverStoredRef[T](ctx, ep, store, storedKey, encCfg, encryptAtRest))
			return
		}
		msg.ID = storedDoc.ID
		msg.Created = storedDoc.Created
		msg.Payload = storedDoc.Envelope
	}
	logState(ctx, ep, d.Tag, stateResolved)

	now := time.Now().UTC()
	msg.Consumed = &now
	ref := storedDocRef(store, storedKey, storedDoc, encCfg, encryptAtRest, ep.cipher)

	if ctx.Err() != nil {
		// Neither ack nor reject: the delivery stays unacknowledged and the
		// broker redelivers it per its own rules once the consumer is gone.
		return
	}
	logState(ctx, ep, d.Tag, stateDispatching)

	if err := dispatch(ctx, handler, msg.Payload); err != nil {
		logState(ctx, ep, d.Tag, stateRejected)
		rejectDelivery(ctx, ep, d.Tag, opt.Requeue, reasonFromDispatchError(err), ref)
		return
	}

	acknowledgeDelivery(ctx, ep, d.Tag, ref)
	logState(ctx, ep, d.Tag, stateAcked)
}

func logState(ctx context.Context, ep *boundEndpoint, tag uint64, state deliveryState) {
	if ep.cfg.SuppressLogs {
		return
	}
	logger.L().DebugContext(ctx, "envelope delivery state", "endpoint", ep.cfg.Name, "tag", tag, "state", string(state))
}

// dispatch invokes handler, converting a panic into an error so it flows
// through the same rejection path as a returned error.
func dispatch[T any](ctx context.Context, handler Handler[T], payload T) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reason := FromPanic(rec, CaptureTrace(3))
			err = rejectionError{reason: reason}
		}
	}()
	return handler(ctx, payload)
}

// rejectionError wraps a Reason built from a recovered panic so it can
// travel through the normal error-handling path.
type rejectionError struct{ reason *Reason }

func (e rejectionError) Error() string { return e.reason.Message }

func reasonFromDispatchError(err error) *Reason {
	if re, ok := err.(rejectionError); ok {
		return re.reason
	}
	return FromError(err, CaptureTrace(2))
}

// recoverStoredRef builds a write-back ref for a delivery that failed
// before its stored document was resolved. When the object key is known it
// best-effort re-fetches the document so the rejection disposition lands on
// the real record; if even that fails, a skeleton document carrying the key
// is written so the rejection is still recorded at the store.
func recoverStoredRef[T any](ctx context.Context, ep *boundEndpoint, store *ObjectStore, key string, encCfg *EncryptionConfig, encryptAtRest bool) *storedRef[T] {
	if key == "" || store == nil {
		return nil
	}
	doc, err := GetStoredMessage[T](ctx, store, key, ep.cipher, encCfg, encryptAtRest)
	if err != nil {
		doc = &StoredMessage[T]{Payload: key}
	}
	return storedDocRef(store, key, doc, encCfg, encryptAtRest, ep.cipher)
}

// decodeDelivery reverses transport encryption (if configured) and parses
// the inline frame. storedKey is non-empty when the endpoint offloads to an
// object store, in which case msg.Payload is the zero value of T (it is
// filled in by the caller after resolving the stored document).
func decodeDelivery[T any](ep *boundEndpoint, d Delivery, encCfg *EncryptionConfig, offloaded bool) (msg *Message[T], storedKey string, err error) {
	if offloaded {
		key, kerr := decodeKey(d.Body, ep.cfg.format(), ep.cipher, encCfg)
		if kerr != nil {
			return nil, "", kerr
		}
		return &Message[T]{}, key, nil
	}

	if encCfg != nil {
		encMsg, derr := DecodeInline[string](d.Body, ep.cfg.format())
		if derr != nil {
			return nil, "", derr
		}
		value, verr := DecryptValue[T](ep.cipher, encMsg.Payload, *encCfg)
		if verr != nil {
			return nil, "", verr
		}
		return &Message[T]{ID: encMsg.ID, Created: encMsg.Created, Payload: value}, "", nil
	}

	plain, derr := DecodeInline[T](d.Body, ep.cfg.format())
	if derr != nil {
		return nil, "", derr
	}
	return plain, "", nil
}

func decodeKey(body []byte, format Format, c Cipher, encCfg *EncryptionConfig) (string, error) {
	if encCfg != nil {
		encMsg, err := DecodeInline[string](body, format)
		if err != nil {
			return "", err
		}
		return DecryptValue[string](c, encMsg.Payload, *encCfg)
	}
	msg, err := DecodeInline[string](body, format)
	if err != nil {
		return "", err
	}
	return msg.Payload, nil
}

// storedRef carries everything needed to write back a stored document's
// disposition (Acknowledged or Rejected) using the same encryption settings
// it was originally persisted with.
type storedRef[T any] struct {
	store         *ObjectStore
	key           string
	doc           *StoredMessage[T]
	encCfg        *EncryptionConfig
	encryptAtRest bool
	cipher        Cipher
}

func storedDocRef[T any](store *ObjectStore, key string, doc *StoredMessage[T], encCfg *EncryptionConfig, encryptAtRest bool, cipher Cipher) *storedRef[T] {
	if key == "" || store == nil {
		return nil
	}
	return &storedRef[T]{store: store, key: key, doc: doc, encCfg: encCfg, encryptAtRest: encryptAtRest, cipher: cipher}
}

// acknowledgeDelivery acks the broker delivery and, if the endpoint offloads
// to an object store, writes back the stored document's Acknowledged
// timestamp. The broker ack always happens first.
func acknowledgeDelivery[T any](ctx context.Context, ep *boundEndpoint, tag uint64, ref *storedRef[T]) {
	if err := ep.transport.Ack(tag); err != nil {
		logger.L().ErrorContext(ctx, "failed to ack delivery", "endpoint", ep.cfg.Name, "error", err)
	}

	if ref == nil || ref.doc == nil {
		return
	}

	now := time.Now().UTC()
	ref.doc.Acknowledged = &now
	ref.doc.Consumed = &now
	if err := PutStoredMessage(ctx, ref.store, ref.key, ref.doc, ref.cipher, ref.encCfg, ref.encryptAtRest); err != nil {
		logWriteBackFailure(ctx, ep.cfg.Name, ref.key, err)
	}
}

// rejectDelivery rejects the broker delivery and, if the endpoint offloads
// to an object store, writes back the stored document's Rejected timestamp
// and reason. The broker reject always happens first.
func rejectDelivery[T any](ctx context.Context, ep *boundEndpoint, tag uint64, requeue bool, reason *Reason, ref *storedRef[T]) {
	if err := ep.transport.Reject(tag, requeue); err != nil {
		logger.L().ErrorContext(ctx, "failed to reject delivery", "endpoint", ep.cfg.Name, "error", err)
	}

	if !ep.cfg.SuppressLogs {
		logger.L().WarnContext(ctx, "envelope delivery rejected",
			"endpoint", ep.cfg.Name, "reason", reason.Message, "requeue", requeue)
	}

	if ref == nil || ref.doc == nil {
		return
	}

	now := time.Now().UTC()
	ref.doc.Rejected = &now
	ref.doc.RejectedReason = reason
	if err := PutStoredMessage(ctx, ref.store, ref.key, ref.doc, ref.cipher, ref.encCfg, ref.encryptAtRest); err != nil {
		logWriteBackFailure(ctx, ep.cfg.Name, ref.key, err)
	}
}
