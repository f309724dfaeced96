package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"sentinel/internal/dao"
	"sentinel/internal/messaging"
	"sentinel/pkg/logger"
)

const outboxBatchSize = 50

// OutboxRelay drains pending outbox entries to the bus. Entries that fail
// to publish stay in the table with a bumped attempt counter and are picked
// up on the next tick.
type OutboxRelay struct {
	outbox   dao.OutboxDAO
	bus      messaging.Bus
	interval time.Duration
	logger   *logger.Logger
}

func NewOutboxRelay(outbox dao.OutboxDAO, bus messaging.Bus, interval time.Duration) *OutboxRelay {
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxRelay{
		outbox:   outbox,
		bus:      bus,
		interval: interval,
		logger:   logger.NewLogger(logrus.InfoLevel),
	}
}

// Run blocks until the context is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopping")
			return
		case <-ticker.C:
			r.Drain(ctx)
		}
	}
}

// Drain publishes one batch of unpublished entries.
func (r *OutboxRelay) Drain(ctx context.Context) {
	entries, err := r.outbox.FetchUnpublished(outboxBatchSize)
	if err != nil {
		r.logger.Error("Failed to fetch outbox entries", logger.Fields{"error": err})
		return
	}

	for _, entry := range entries {
		var env messaging.Envelope
		if err := json.Unmarshal(entry.Body, &env); err != nil {
			// Unparseable rows cannot ever publish; mark them so they stop
			// blocking the batch.
			r.logger.Error("Corrupt outbox entry, marking published", logger.Fields{"id": entry.ID, "error": err})
			if err := r.outbox.MarkPublished(entry.ID); err != nil {
				r.logger.Error("Failed to mark corrupt entry", logger.Fields{"id": entry.ID, "error": err})
			}
			continue
		}

		if err := r.bus.Publish(ctx, entry.RoutingKey, env); err != nil {
			r.logger.Warn("Outbox publish failed, will retry", logger.Fields{
				"id":       entry.ID,
				"key":      entry.RoutingKey,
				"attempts": entry.Attempts + 1,
				"error":    err,
			})
			if err := r.outbox.Bump(entry.ID); err != nil {
				r.logger.Error("Failed to bump outbox attempts", logger.Fields{"id": entry.ID, "error": err})
			}
			continue
		}

		if err := r.outbox.MarkPublished(entry.ID); err != nil {
			r.logger.Error("Failed to mark outbox entry published", logger.Fields{"id": entry.ID, "error": err})
		}
	}
}
