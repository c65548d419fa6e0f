package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
	"github.com/bookingcontrol/booker-slot-svc/internal/infrastructure/postgres"
)

// OutboxRepository persists outbox entries. Add participates in the
// caller's transaction through the executor; every status mutation
// runs standalone so delivery bookkeeping cannot roll back commits.
type OutboxRepository struct {
	pg *postgres.Postgres
}

func NewOutboxRepository(pg *postgres.Postgres) *OutboxRepository {
	return &OutboxRepository{pg: pg}
}

const outboxColumns = `id, aggregate_type, aggregate_id, topic, event_type, payload, status, retry_count, created_at, published_at, last_error`

func (r *OutboxRepository) Add(ctx context.Context, entry *dom.OutboxEntry) error {
	query := `INSERT INTO outbox (` + outboxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, '')`
	_, err := r.pg.GetExecutor(ctx).Exec(ctx, query,
		entry.ID, entry.AggregateType, entry.AggregateID, entry.Topic,
		entry.EventType, entry.Payload, entry.Status, entry.RetryCount, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (r *OutboxRepository) Get(ctx context.Context, id uuid.UUID) (*dom.OutboxEntry, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox WHERE id = $1`
	row := r.pg.GetExecutor(ctx).QueryRow(ctx, query, id)

	entry, err := scanOutboxEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("outbox entry %s not found", id)
	}
	return entry, err
}

func (r *OutboxRepository) GetPending(ctx context.Context, maxRetries, limit int) ([]*dom.OutboxEntry, error) {
	query := `SELECT ` + outboxColumns + `
		FROM outbox
		WHERE status = $1 AND retry_count < $2
		ORDER BY created_at
		LIMIT $3`
	rows, err := r.pg.GetExecutor(ctx).Query(ctx, query, dom.OutboxPending, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox: %w", err)
	}
	defer rows.Close()

	var entries []*dom.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox SET status = $1, published_at = now() WHERE id = $2 AND status = $3`
	_, err := r.pg.GetExecutor(ctx).Exec(ctx, query, dom.OutboxPublished, id, dom.OutboxPending)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func (r *OutboxRepository) IncrementRetry(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `UPDATE outbox SET retry_count = retry_count + 1, last_error = $1 WHERE id = $2 AND status = $3`
	_, err := r.pg.GetExecutor(ctx).Exec(ctx, query, lastError, id, dom.OutboxPending)
	if err != nil {
		return fmt.Errorf("increment outbox retry: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailedAfterMaxRetries(ctx context.Context, maxRetries int) (int64, error) {
	query := `UPDATE outbox SET status = $1 WHERE status = $2 AND retry_count >= $3`
	tag, err := r.pg.GetExecutor(ctx).Exec(ctx, query, dom.OutboxFailed, dom.OutboxPending, maxRetries)
	if err != nil {
		return 0, fmt.Errorf("mark outbox failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *OutboxRepository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM outbox WHERE status = $1 AND published_at < $2`
	tag, err := r.pg.GetExecutor(ctx).Exec(ctx, query, dom.OutboxPublished, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOutboxEntry(row pgx.Row) (*dom.OutboxEntry, error) {
	var e dom.OutboxEntry
	err := row.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Topic, &e.EventType,
		&e.Payload, &e.Status, &e.RetryCount, &e.CreatedAt, &e.PublishedAt, &e.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan outbox entry: %w", err)
	}
	return &e, nil
}
