package envelope

import "context"

// Delivery is a single unacknowledged message received from the broker.
type Delivery struct {
	Tag         uint64
	Body        []byte
	ContentType string
}

// Transport is the narrow AMQP 0-9-1 port the publisher and subscriber
// depend on. It deliberately does not expose exchanges, bindings, or
// arbitrary topology: publish to the default exchange, passive-declared
// queue consume, and per-delivery ack/reject is all the pipeline needs.
type Transport interface {
	// Publish sends body to the default exchange with the given routing
	// key (the endpoint identifier), mandatory=true, delivery-mode=2, and
	// the given content type.
	Publish(ctx context.Context, routingKey string, body []byte, contentType string) error

	// Consume opens (if not already open) the consumer for queue and
	// returns its delivery channel. The channel is closed when the
	// underlying connection/channel closes.
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)

	// Ack acknowledges a single delivery (multiple=false).
	Ack(tag uint64) error

	// Reject rejects a single delivery with the given requeue flag.
	Reject(tag uint64, requeue bool) error

	// QueueDepth returns the broker-reported message count for queue.
	QueueDepth(ctx context.Context, queue string) (int, error)

	// CancelConsume best-effort cancels the active consumer, if any.
	CancelConsume() error

	// Close tears down the channel and connection.
	Close() error
}
