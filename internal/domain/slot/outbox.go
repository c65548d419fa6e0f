package slot

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "PENDING"
	OutboxPublished OutboxStatus = "PUBLISHED"
	OutboxFailed    OutboxStatus = "FAILED"
)

// OutboxEntry is one undelivered (or delivered) domain event, written
// in the same transaction as the state change that produced it.
// Status only ever moves PENDING -> PUBLISHED or PENDING -> FAILED.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	Topic         string
	EventType     string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
	LastError     string
}

// NewOutboxEntry wraps a domain event into a PENDING entry with the
// envelope already marshaled.
func NewOutboxEntry(ev Event, occurredAt time.Time) (*OutboxEntry, error) {
	payload, err := MarshalEnvelope(ev, occurredAt)
	if err != nil {
		return nil, err
	}
	return &OutboxEntry{
		ID:            uuid.New(),
		AggregateType: ev.AggregateType(),
		AggregateID:   ev.AggregateID(),
		Topic:         ev.Topic(),
		EventType:     ev.EventType(),
		Payload:       payload,
		Status:        OutboxPending,
		RetryCount:    0,
		CreatedAt:     occurredAt.UTC(),
	}, nil
}

// OutboxRepository persists and mutates outbox entries. Add must be
// called inside the business transaction; everything else runs in its
// own transaction so delivery bookkeeping never rolls back a commit.
type OutboxRepository interface {
	Add(ctx context.Context, entry *OutboxEntry) error
	Get(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	GetPending(ctx context.Context, maxRetries, limit int) ([]*OutboxEntry, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	IncrementRetry(ctx context.Context, id uuid.UUID, lastError string) error
	MarkFailedAfterMaxRetries(ctx context.Context, maxRetries int) (int64, error)
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxNotifier wakes the immediate dispatch path after a commit.
// Implementations must never block the caller; a dropped notification
// is fine because the sweeper converges the same entries.
type OutboxNotifier interface {
	Notify(entryID uuid.UUID)
}
