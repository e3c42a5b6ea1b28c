// Package memtransport implements envelope.Transport in memory, for tests
// that exercise the full publish/subscribe round trip without a broker.
package memtransport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/chris-alexander-pop/go-service-queue/pkg/envelope"
)

// Transport is an in-memory envelope.Transport fake. Messages published
// before Consume collect in an unbounded backlog; once Consume has started
// they go through a 64-slot delivery channel, and Publish blocks while it
// is full. Ack/Reject are recorded for test assertions.
type Transport struct {
	mu      sync.Mutex
	queue   []envelope.Delivery
	nextTag uint64

	out     chan envelope.Delivery
	started bool

	Acked    []uint64
	Rejected []RejectedDelivery
}

// RejectedDelivery records a single Reject call for test assertions.
type RejectedDelivery struct {
	Tag     uint64
	Requeue bool
}

// New creates an empty in-memory transport.
func New() *Transport {
	return &Transport{out: make(chan envelope.Delivery, 64)}
}

var _ envelope.Transport = (*Transport)(nil)

func (t *Transport) Publish(ctx context.Context, routingKey string, body []byte, contentType string) error {
	tag := atomic.AddUint64(&t.nextTag, 1)
	d := envelope.Delivery{Tag: tag, Body: append([]byte(nil), body...), ContentType: contentType}

	t.mu.Lock()
	started := t.started
	t.mu.Unlock()

	if started {
		t.out <- d
		return nil
	}

	t.mu.Lock()
	t.queue = append(t.queue, d)
	t.mu.Unlock()
	return nil
}

func (t *Transport) Consume(ctx context.Context, queue string) (<-chan envelope.Delivery, error) {
	t.mu.Lock()
	t.started = true
	backlog := t.queue
	t.queue = nil
	t.mu.Unlock()

	go func() {
		for _, d := range backlog {
			t.out <- d
		}
	}()

	return t.out, nil
}

func (t *Transport) Ack(tag uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Acked = append(t.Acked, tag)
	return nil
}

func (t *Transport) Reject(tag uint64, requeue bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Rejected = append(t.Rejected, RejectedDelivery{Tag: tag, Requeue: requeue})
	return nil
}

func (t *Transport) QueueDepth(ctx context.Context, queue string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue), nil
}

func (t *Transport) CancelConsume() error {
	return nil
}

// Close is a no-op: the in-memory queue has no connection to tear down,
// and closing the delivery channel here would race with any in-flight
// backlog-draining goroutine started by Consume.
func (t *Transport) Close() error {
	return nil
}
