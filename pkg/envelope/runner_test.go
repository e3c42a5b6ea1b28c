package envelope_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chris-alexander-pop/go-service-queue/pkg/envelope"
	"github.com/chris-alexander-pop/go-service-queue/pkg/envelope/adapters/memtransport"
	"github.com/chris-alexander-pop/go-service-queue/pkg/test"
)

type RunnerSuite struct {
	test.Suite
}

func TestRunnerSuite(t *testing.T) {
	test.Run(t, new(RunnerSuite))
}

func (s *RunnerSuite) TestRunnerProcessesPublishedMessages() {
	mt := memtransport.New()
	r := envelope.NewRegistry(envelope.WithDialer(func(ctx context.Context, cfg envelope.EndpointConfig) (envelope.Transport, error) {
		return mt, nil
	}))
	s.Require().NoError(r.RegisterEndpoint(envelope.EndpointConfig{Name: "orders", Queue: "orders", Address: "test"}))

	var processed int32
	runner := envelope.NewRunner(r, "orders", func(ctx context.Context, payload order) error {
		atomic.AddInt32(&processed, 1)
		return nil
	})

	runner.Start(s.Ctx)
	defer runner.Stop()

	_, err := envelope.Publish(s.Ctx, r, "orders", order{ID: "o-1", Total: 1})
	s.Require().NoError(err)

	s.Eventually(func() bool {
		return atomic.LoadInt32(&processed) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *RunnerSuite) TestStopIsIdempotentAndBlocksUntilExit() {
	mt := memtransport.New()
	r := envelope.NewRegistry(envelope.WithDialer(func(ctx context.Context, cfg envelope.EndpointConfig) (envelope.Transport, error) {
		return mt, nil
	}))
	s.Require().NoError(r.RegisterEndpoint(envelope.EndpointConfig{Name: "orders", Queue: "orders", Address: "test"}))

	runner := envelope.NewRunner(r, "orders", func(ctx context.Context, payload order) error {
		return nil
	})

	runner.Start(s.Ctx)
	runner.Stop()
	runner.Stop() // idempotent, must not block or panic
}
