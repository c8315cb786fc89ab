package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/trami25/FisioNet/libs/db"
	otelx "github.com/trami25/FisioNet/libs/otel"
)

// Repository reads and writes the outbox table that sits next to the
// appointments table:
//
//	CREATE TABLE outbox_events (
//	    id             BIGSERIAL PRIMARY KEY,
//	    event_id       UUID NOT NULL DEFAULT gen_random_uuid(),
//	    aggregate_type TEXT NOT NULL,
//	    aggregate_id   TEXT NOT NULL,
//	    event_type     TEXT NOT NULL,
//	    payload        JSONB NOT NULL,
//	    traceparent    TEXT NOT NULL DEFAULT '',
//	    tracestate     TEXT NOT NULL DEFAULT '',
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    published_at   TIMESTAMPTZ
//	);
//
// Rows are inserted in the same transaction as the appointment change they
// describe, so an event exists exactly when the change committed.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stages evt inside the caller's transaction, stamping it with the
// current trace context for the publisher to restore.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// PendingEvent is an outbox row awaiting publication.
type PendingEvent struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

// NextBatch claims up to limit unpublished rows in insertion order. SKIP
// LOCKED keeps concurrent publisher instances off each other's rows; claimed
// rows stay locked until the caller's transaction ends.
func (r *Repository) NextBatch(ctx context.Context, tx pgx.Tx, limit int) ([]PendingEvent, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []PendingEvent
	for rows.Next() {
		var evt PendingEvent
		if err := rows.Scan(&evt.ID, &evt.EventID, &evt.AggregateType, &evt.AggregateID,
			&evt.EventType, &evt.Payload, &evt.Traceparent, &evt.Tracestate, &evt.CreatedAt); err != nil {
			return nil, err
		}
		pending = append(pending, evt)
	}
	return pending, rows.Err()
}

// MarkPublished records delivery. Published rows are kept for audit; pruning
// is a scheduled database job, not this service's concern.
func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
