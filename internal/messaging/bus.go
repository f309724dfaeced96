package messaging

import "context"

// Delivery is one inbound message as seen by a handler.
type Delivery struct {
	Queue      string
	RoutingKey string
	Body       []byte
}

// Handler processes one delivery. A nil return acknowledges the message; an
// error engages the consumer's retry and dead-letter policy.
type Handler func(ctx context.Context, d Delivery) error

// Bus is the durable topic-based publish/subscribe transport.
type Bus interface {
	Publish(ctx context.Context, routingKey string, env Envelope) error
	// Subscribe binds a durable queue to the exchange with the given
	// binding keys and consumes it with handler until Close.
	Subscribe(queue string, bindingKeys []string, handler Handler) error
	Close() error
}
