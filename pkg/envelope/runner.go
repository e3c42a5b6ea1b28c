package envelope

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/go-service-queue/pkg/concurrency"
	"github.com/chris-alexander-pop/go-service-queue/pkg/logger"
)

// Runner hosts a Subscribe loop for one endpoint as a long-running
// background goroutine, restarting it on transient failure until stopped.
type Runner[T any] struct {
	registry *Registry
	endpoint string
	handler  Handler[T]
	opt      SubscribeOption

	// RestartDelay is how long the runner waits before re-entering
	// Subscribe after it returns with an error other than context
	// cancellation. Defaults to 2s if zero.
	RestartDelay time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner constructs a hosted subscriber runner for endpoint, not yet
// started.
func NewRunner[T any](r *Registry, endpoint string, handler Handler[T], opts ...SubscribeOption) *Runner[T] {
	var opt SubscribeOption
	if len(opts) > 0 {
		opt = opts[0]
	}
	return &Runner[T]{registry: r, endpoint: endpoint, handler: handler, opt: opt}
}

// Start launches the runner's loop via concurrency.SafeGo, so a panic in
// Subscribe's delivery loop is recovered and logged rather than crashing
// the process. Start is idempotent: calling it twice without an
// intervening Stop is a no-op.
func (h *Runner[T]) Start(ctx context.Context) {
	if h.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	delay := h.RestartDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	concurrency.SafeGo(runCtx, func() {
		defer close(h.done)
		for {
			err := Subscribe(runCtx, h.registry, h.endpoint, h.handler, h.opt)
			if runCtx.Err() != nil {
				return
			}
			if err != nil {
				logger.L().ErrorContext(runCtx, "hosted subscriber runner restarting after error",
					"endpoint", h.endpoint, "error", err)
			}

			select {
			case <-runCtx.Done():
				return
			case <-time.After(delay):
			}
		}
	})
}

// Stop cancels the runner's context, best-effort cancels the active
// broker consumer (Subscribe does this itself on context cancellation),
// and blocks until the loop goroutine has exited.
func (h *Runner[T]) Stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
}
