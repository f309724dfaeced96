package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"sentinel/internal/models"
	"sentinel/pkg/logger"
)

const (
	maxHandlerAttempts = 3
	retryBaseDelay     = 250 * time.Millisecond
)

// DeadLetterSink archives messages that exhausted their retries.
type DeadLetterSink interface {
	Save(letter *models.DeadLetter) error
}

// Alerter notifies operators about dead-lettered messages.
type Alerter interface {
	Alert(title, message string, fields map[string]string)
}

// RabbitBus is the AMQP implementation of Bus: one topic exchange, durable
// queues, manual acks. Handler failures are retried with capped exponential
// backoff and then dead-lettered, so a poison message never blocks a queue.
type RabbitBus struct {
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	exchange string
	limiter  *limiter
	dlq      DeadLetterSink
	alerter  Alerter
	logger   *logger.Logger

	mu        sync.Mutex
	consumers []*amqp.Channel
	cancel    context.CancelFunc
	ctx       context.Context
}

type RabbitOption func(*RabbitBus)

// WithDeadLetterSink archives exhausted messages before they are acked.
func WithDeadLetterSink(sink DeadLetterSink) RabbitOption {
	return func(b *RabbitBus) { b.dlq = sink }
}

// WithAlerter sends an operator alert per dead-lettered message.
func WithAlerter(a Alerter) RabbitOption {
	return func(b *RabbitBus) { b.alerter = a }
}

// WithMaxConcurrency bounds concurrent handler executions.
func WithMaxConcurrency(max int) RabbitOption {
	return func(b *RabbitBus) { b.limiter = newLimiter(max) }
}

// NewRabbitBus connects to the broker and declares the topic exchange.
func NewRabbitBus(url, exchange string, opts ...RabbitOption) (*RabbitBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &RabbitBus{
		conn:     conn,
		pubCh:    ch,
		exchange: exchange,
		limiter:  newLimiter(8),
		logger:   logger.NewLogger(logrus.InfoLevel),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus, nil
}

func (b *RabbitBus) Publish(ctx context.Context, routingKey string, env Envelope) error {
	body, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubCh == nil {
		return fmt.Errorf("publish %s: channel not open", routingKey)
	}
	err = b.pubCh.PublishWithContext(ctx, b.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.EventID,
		Timestamp:    env.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (b *RabbitBus) Subscribe(queue string, bindingKeys []string, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	for _, key := range bindingKeys {
		if err := ch.QueueBind(queue, key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", queue, key, err)
		}
	}
	if err := ch.Qos(cap(b.limiter.semaphore), 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	b.mu.Lock()
	b.consumers = append(b.consumers, ch)
	b.mu.Unlock()

	go func() {
		for d := range deliveries {
			delivery := d
			b.limiter.do(func() {
				b.handleWithRetry(queue, delivery, handler)
			})
		}
	}()

	b.logger.Info("Consumer started", logger.Fields{"queue": queue, "bindings": bindingKeys})
	return nil
}

// handleWithRetry runs the handler up to maxHandlerAttempts, then
// dead-letters the message and acks it so the broker never redelivers a
// poison message forever.
func (b *RabbitBus) handleWithRetry(queue string, d amqp.Delivery, handler Handler) {
	delivery := Delivery{Queue: queue, RoutingKey: d.RoutingKey, Body: d.Body}

	var lastErr error
	delay := retryBaseDelay
	for attempt := 1; attempt <= maxHandlerAttempts; attempt++ {
		lastErr = handler(b.ctx, delivery)
		if lastErr == nil {
			if err := d.Ack(false); err != nil {
				b.logger.Error("Failed to ack message", logger.Fields{"queue": queue, "error": err})
			}
			return
		}

		b.logger.Warn("Handler failed", logger.Fields{
			"queue":   queue,
			"key":     d.RoutingKey,
			"attempt": attempt,
			"error":   lastErr,
		})
		if attempt < maxHandlerAttempts {
			select {
			case <-time.After(delay):
			case <-b.ctx.Done():
				d.Nack(false, true)
				return
			}
			delay *= 2
		}
	}

	b.deadLetter(queue, d, lastErr)
	if err := d.Ack(false); err != nil {
		b.logger.Error("Failed to ack dead-lettered message", logger.Fields{"queue": queue, "error": err})
	}
}

func (b *RabbitBus) deadLetter(queue string, d amqp.Delivery, cause error) {
	b.logger.Error("Message exhausted retries, dead-lettering", logger.Fields{
		"queue": queue,
		"key":   d.RoutingKey,
		"error": cause,
	})

	if b.dlq != nil {
		letter := &models.DeadLetter{
			Queue:      queue,
			RoutingKey: d.RoutingKey,
			Body:       d.Body,
			Reason:     cause.Error(),
			Attempts:   maxHandlerAttempts,
			CreatedAt:  time.Now().UTC(),
		}
		if err := b.dlq.Save(letter); err != nil {
			b.logger.Error("Failed to archive dead letter", logger.Fields{"queue": queue, "error": err})
		}
	}

	env, err := NewEnvelope(KeyDeadLetter, map[string]string{
		"queue":      queue,
		"routingKey": d.RoutingKey,
		"reason":     cause.Error(),
	})
	if err == nil {
		if err := b.Publish(b.ctx, KeyDeadLetter, env); err != nil {
			b.logger.Error("Failed to publish dead-letter notice", logger.Fields{"error": err})
		}
	}

	if b.alerter != nil {
		b.alerter.Alert("Message dead-lettered", cause.Error(), map[string]string{
			"queue":       queue,
			"routing_key": d.RoutingKey,
		})
	}
}

func (b *RabbitBus) Close() error {
	b.cancel()
	b.mu.Lock()
	for _, ch := range b.consumers {
		ch.Close()
	}
	b.mu.Unlock()
	return b.conn.Close()
}
