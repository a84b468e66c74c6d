package event

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Create inserts e. The payload goes over the wire as text: lib/pq would
// send a byte slice as bytea, which jsonb rejects.
func Create(ctx context.Context, db sqlx.ExecerContext, e Event) error {
	const q = `
	INSERT INTO outbox_events (event_id, aggregate_id, event_type, topic, event_key, payload, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.ExecContext(ctx, q, e.ID, e.AggregateID, e.Type, e.Topic, e.Key, string(e.Payload), e.Status, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting event[%s]: %w", e.ID, err)
	}
	return nil
}

// FetchPending locks up to limit unsent events. Rows locked by another
// relay are skipped.
func FetchPending(ctx context.Context, tx sqlx.QueryerContext, limit int) ([]Event, error) {
	const q = `
	SELECT event_id, aggregate_id, event_type, topic, event_key, payload, status, created_at, sent_at
	FROM outbox_events
	WHERE status = $1
	ORDER BY created_at
	LIMIT $2
	FOR UPDATE SKIP LOCKED`

	var evs []Event
	if err := sqlx.SelectContext(ctx, tx, &evs, q, Pending, limit); err != nil {
		return nil, fmt.Errorf("selecting pending events: %w", err)
	}
	return evs, nil
}

func MarkSent(ctx context.Context, db sqlx.ExecerContext, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	const q = `UPDATE outbox_events SET status = $1, sent_at = $2 WHERE event_id = ANY($3)`

	res, err := db.ExecContext(ctx, q, Sent, now, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("marking %d events as sent: %w", len(ids), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking sent events: %w", err)
	}
	if n != int64(len(ids)) {
		return fmt.Errorf("marked %d of %d events as sent", n, len(ids))
	}
	return nil
}

func CountPending(ctx context.Context, db sqlx.QueryerContext) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, db, &n, `SELECT count(*) FROM outbox_events WHERE status = $1`, Pending); err != nil {
		return 0, fmt.Errorf("counting pending events: %w", err)
	}
	return n, nil
}
