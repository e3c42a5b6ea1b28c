package envelope_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chris-alexander-pop/go-service-queue/pkg/blob"
	"github.com/chris-alexander-pop/go-service-queue/pkg/blob/adapters/memory"
	"github.com/chris-alexander-pop/go-service-queue/pkg/envelope"
	"github.com/chris-alexander-pop/go-service-queue/pkg/envelope/adapters/memtransport"
	"github.com/chris-alexander-pop/go-service-queue/pkg/test"
)

type SubscribeSuite struct {
	test.Suite
}

func TestSubscribeSuite(t *testing.T) {
	test.Run(t, new(SubscribeSuite))
}

func (s *SubscribeSuite) TestRejectionIsNotRequeuedByDefault() {
	mt := memtransport.New()
	r := envelope.NewRegistry(envelope.WithDialer(func(ctx context.Context, cfg envelope.EndpointConfig) (envelope.Transport, error) {
		return mt, nil
	}))
	s.Require().NoError(r.RegisterEndpoint(envelope.EndpointConfig{Name: "orders", Queue: "orders", Address: "test"}))

	_, err := envelope.Publish(s.Ctx, r, "orders", order{ID: "bad", Total: -1})
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(s.Ctx, time.Second)
	defer cancel()

	boom := errors.New("negative total")
	_ = envelope.Subscribe(ctx, r, "orders", func(ctx context.Context, payload order) error {
		defer cancel()
		return boom
	})

	s.Require().Len(mt.Rejected, 1)
	s.False(mt.Rejected[0].Requeue)
	s.Empty(mt.Acked)
}

func (s *SubscribeSuite) TestHandlerPanicIsRejectedNotCrashed() {
	mt := memtransport.New()
	r := envelope.NewRegistry(envelope.WithDialer(func(ctx context.Context, cfg envelope.EndpointConfig) (envelope.Transport, error) {
		return mt, nil
	}))
	s.Require().NoError(r.RegisterEndpoint(envelope.EndpointConfig{Name: "orders", Queue: "orders", Address: "test"}))

	_, err := envelope.Publish(s.Ctx, r, "orders", order{ID: "panics", Total: 1})
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(s.Ctx, time.Second)
	defer cancel()

	_ = envelope.Subscribe(ctx, r, "orders", func(ctx context.Context, payload order) error {
		defer cancel()
		panic("unexpected failure")
	})

	s.Require().Len(mt.Rejected, 1)
}

func (s *SubscribeSuite) TestStoredDocumentMarkedRejectedOnHandlerFailure() {
	mt := memtransport.New()
	backend := memory.New(blob.Config{})
	r := envelope.NewRegistry(envelope.WithDialer(func(ctx context.Context, cfg envelope.EndpointConfig) (envelope.Transport, error) {
		return mt, nil
	}))
	s.Require().NoError(r.RegisterEndpoint(envelope.EndpointConfig{
		Name: "orders", Queue: "orders", Address: "test",
		ObjectStore: &envelope.ObjectStoreConfig{Store: backend, BucketPrefix: "bucket"},
	}))

	msg, err := envelope.Publish(s.Ctx, r, "orders", order{ID: "doomed", Total: 3})
	s.Require().NoError(err)
	s.Require().NotNil(msg.StoredRef)

	ctx, cancel := context.WithTimeout(s.Ctx, time.Second)
	defer cancel()

	_ = envelope.Subscribe(ctx, r, "orders", func(ctx context.Context, payload order) error {
		defer cancel()
		return errors.New("inventory check failed")
	})

	s.Require().Len(mt.Rejected, 1)
	s.Empty(mt.Acked)

	doc, err := envelope.GetStoredMessage[order](s.Ctx, envelope.NewObjectStore(backend, envelope.FormatJSON), *msg.StoredRef, nil, nil, false)
	s.Require().NoError(err)
	s.Require().NotNil(doc.Rejected)
	s.Nil(doc.Acknowledged)
	s.Require().NotNil(doc.RejectedReason)
	s.Equal("inventory check failed", doc.RejectedReason.Message)
	s.Require().NotEmpty(doc.RejectedReason.Trace)
	s.NotEmpty(doc.RejectedReason.Trace[0].Method)
	s.Equal(*msg.StoredRef, doc.Payload)
}

func (s *SubscribeSuite) TestStoredDocumentMarkedAcknowledgedOnSuccess() {
	mt := memtransport.New()
	backend := memory.New(blob.Config{})
	r := envelope.NewRegistry(envelope.WithDialer(func(ctx context.Context, cfg envelope.EndpointConfig) (envelope.Transport, error) {
		return mt, nil
	}))
	s.Require().NoError(r.RegisterEndpoint(envelope.EndpointConfig{
		Name: "orders", Queue: "orders", Address: "test",
		ObjectStore: &envelope.ObjectStoreConfig{Store: backend, BucketPrefix: "bucket"},
	}))

	msg, err := envelope.Publish(s.Ctx, r, "orders", order{ID: "fine", Total: 8})
	s.Require().NoError(err)
	s.Require().NotNil(msg.StoredRef)

	ctx, cancel := context.WithTimeout(s.Ctx, time.Second)
	defer cancel()

	_ = envelope.Subscribe(ctx, r, "orders", func(ctx context.Context, payload order) error {
		defer cancel()
		return nil
	})

	s.Require().Len(mt.Acked, 1)

	doc, err := envelope.GetStoredMessage[order](s.Ctx, envelope.NewObjectStore(backend, envelope.FormatJSON), *msg.StoredRef, nil, nil, false)
	s.Require().NoError(err)
	s.Require().NotNil(doc.Acknowledged)
	s.NotNil(doc.Consumed)
	s.Nil(doc.Rejected)
	s.Equal(order{ID: "fine", Total: 8}, doc.Envelope)
}

func (s *SubscribeSuite) TestSuccessfulHandlerIsAcked() {
	mt := memtransport.New()
	r := envelope.NewRegistry(envelope.WithDialer(func(ctx context.Context, cfg envelope.EndpointConfig) (envelope.Transport, error) {
		return mt, nil
	}))
	s.Require().NoError(r.RegisterEndpoint(envelope.EndpointConfig{Name: "orders", Queue: "orders", Address: "test"}))

	_, err := envelope.Publish(s.Ctx, r, "orders", order{ID: "ok", Total: 1})
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(s.Ctx, time.Second)
	defer cancel()

	var seen order
	_ = envelope.Subscribe(ctx, r, "orders", func(ctx context.Context, payload order) error {
		seen = payload
		cancel()
		return nil
	})

	s.Equal("ok", seen.ID)
	s.Require().Len(mt.Acked, 1)
	s.Empty(mt.Rejected)
}
