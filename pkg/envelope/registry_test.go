package envelope_test

import (
	"context"
	"testing"

	"github.com/chris-alexander-pop/go-service-queue/pkg/envelope"
	"github.com/chris-alexander-pop/go-service-queue/pkg/envelope/adapters/memtransport"
	"github.com/chris-alexander-pop/go-service-queue/pkg/test"
)

type RegistrySuite struct {
	test.Suite
}

func TestRegistrySuite(t *testing.T) {
	test.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) TestDuplicateNameRejected() {
	r := envelope.NewRegistry()
	cfg := envelope.EndpointConfig{Name: "orders", Queue: "orders", Address: "a"}
	s.Require().NoError(r.RegisterEndpoint(cfg))

	err := r.RegisterEndpoint(envelope.EndpointConfig{Name: "Orders", Queue: "other", Address: "b"})
	s.Error(err)
}

func (s *RegistrySuite) TestDuplicateIdentifierRejected() {
	r := envelope.NewRegistry()
	cfg := envelope.EndpointConfig{Name: "orders", Queue: "q1", Address: "host", VHost: "/"}
	s.Require().NoError(r.RegisterEndpoint(cfg))

	err := r.RegisterEndpoint(envelope.EndpointConfig{Name: "orders-2", Queue: "q1", Address: "host", VHost: "/"})
	s.Error(err)
}

func (s *RegistrySuite) TestMissingNameOrQueueRejected() {
	r := envelope.NewRegistry()
	s.Error(r.RegisterEndpoint(envelope.EndpointConfig{Name: "orders"}))
	s.Error(r.RegisterEndpoint(envelope.EndpointConfig{Queue: "orders"}))
}

func (s *RegistrySuite) TestResolveWithoutDefaultFails() {
	r := envelope.NewRegistry()
	_, err := envelope.Publish(s.Ctx, r, "", order{ID: "o-1"})
	s.Error(err)
}

func (s *RegistrySuite) TestDefaultEndpointUsedWhenNameOmitted() {
	mt := memtransport.New()
	r := envelope.NewRegistry(envelope.WithDialer(func(ctx context.Context, cfg envelope.EndpointConfig) (envelope.Transport, error) {
		return mt, nil
	}))
	cfg := envelope.EndpointConfig{Name: "orders", Queue: "orders", Address: "test"}
	s.Require().NoError(r.RegisterEndpoint(cfg))
	r.RegisterDefaultEndpoint(cfg)

	_, err := envelope.Publish(s.Ctx, r, "", order{ID: "o-1", Total: 1})
	s.Require().NoError(err)
}

func (s *RegistrySuite) TestMessageCountReflectsQueueDepth() {
	mt := memtransport.New()
	r := envelope.NewRegistry(envelope.WithDialer(func(ctx context.Context, cfg envelope.EndpointConfig) (envelope.Transport, error) {
		return mt, nil
	}))
	s.Require().NoError(r.RegisterEndpoint(envelope.EndpointConfig{Name: "orders", Queue: "orders", Address: "test"}))

	_, err := envelope.Publish(s.Ctx, r, "orders", order{ID: "o-1", Total: 1})
	s.Require().NoError(err)

	count, err := r.MessageCount(s.Ctx, "orders")
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *RegistrySuite) TestDisconnectClosesTransport() {
	mt := memtransport.New()
	r := envelope.NewRegistry(envelope.WithDialer(func(ctx context.Context, cfg envelope.EndpointConfig) (envelope.Transport, error) {
		return mt, nil
	}))
	s.Require().NoError(r.RegisterEndpoint(envelope.EndpointConfig{Name: "orders", Queue: "orders", Address: "test"}))

	_, err := envelope.Publish(s.Ctx, r, "orders", order{ID: "o-1"})
	s.Require().NoError(err)

	s.Require().NoError(r.Disconnect(true))
}
