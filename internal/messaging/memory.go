package messaging

import (
	"context"
	"strings"
	"sync"
)

// MemoryBus is an in-process Bus for tests and single-node development. It
// dispatches synchronously and applies no retry policy: handler errors are
// recorded and the message is dropped, which is what a test wants to
// observe.
type MemoryBus struct {
	mu        sync.Mutex
	subs      []memorySub
	published []PublishedMessage
	closed    bool
}

type memorySub struct {
	queue   string
	keys    []string
	handler Handler
}

// PublishedMessage records one Publish call for assertions.
type PublishedMessage struct {
	RoutingKey string
	Envelope   Envelope
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(ctx context.Context, routingKey string, env Envelope) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return context.Canceled
	}
	b.published = append(b.published, PublishedMessage{RoutingKey: routingKey, Envelope: env})
	subs := make([]memorySub, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	body, err := env.Marshal()
	if err != nil {
		return err
	}
	for _, sub := range subs {
		for _, key := range sub.keys {
			if topicMatch(key, routingKey) {
				_ = sub.handler(ctx, Delivery{Queue: sub.queue, RoutingKey: routingKey, Body: body})
				break
			}
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(queue string, bindingKeys []string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, memorySub{queue: queue, keys: bindingKeys, handler: handler})
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Published returns a copy of everything published so far.
func (b *MemoryBus) Published() []PublishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishedMessage, len(b.published))
	copy(out, b.published)
	return out
}

// topicMatch implements AMQP topic matching: * matches one word, # matches
// zero or more.
func topicMatch(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(key); i++ {
			if matchWords(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchWords(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchWords(pattern[1:], key[1:])
	}
}
