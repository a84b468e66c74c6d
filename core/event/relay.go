package event

import (
	"context"
	"fmt"
	"time"

	"github.com/irsalhamdi/course-checkout/database"
	"github.com/irsalhamdi/course-checkout/metrics"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Relay moves pending outbox events to the broker. An event is marked sent
// only after the broker acknowledged it, so delivery is at least once.
type Relay struct {
	db        *sqlx.DB
	producer  Producer
	interval  time.Duration
	batchSize int
	log       logrus.FieldLogger
}

func NewRelay(db *sqlx.DB, producer Producer, interval time.Duration, batchSize int, log logrus.FieldLogger) *Relay {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Relay{
		db:        db,
		producer:  producer,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Run flushes on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	r.log.Info("outbox relay started")
	defer r.log.Info("outbox relay stopped")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil {
				r.log.WithField("message", err).Error("flushing outbox")
				continue
			}
			if n > 0 {
				r.log.WithField("count", n).Info("outbox events published")
			}
		}
	}
}

// Flush publishes one batch and returns how many events were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var sent int

	err := database.Transaction(ctx, r.db, func(tx sqlx.ExtContext) error {
		evs, err := FetchPending(ctx, tx, r.batchSize)
		if err != nil {
			return err
		}
		if len(evs) == 0 {
			return nil
		}

		msgs := make([]Message, 0, len(evs))
		ids := make([]string, 0, len(evs))
		for _, e := range evs {
			msgs = append(msgs, Message{Topic: e.Topic, Key: e.Key, Value: e.Payload})
			ids = append(ids, e.ID)
		}

		if err := r.producer.Produce(ctx, msgs...); err != nil {
			return fmt.Errorf("publishing %d events: %w", len(msgs), err)
		}

		if err := MarkSent(ctx, tx, ids, time.Now().UTC()); err != nil {
			return err
		}

		sent = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.OutboxPublished.Add(float64(sent))
	return sent, nil
}
