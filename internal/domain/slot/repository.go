package slot

import (
	"context"
	"time"
)

// SlotRepository is the persistence interface for slot rows. Methods
// prefixed Lock acquire row-level exclusive locks and must run inside
// a transaction established by TxManager.
type SlotRepository interface {
	// LockForUpdate locks exactly the rows for the given start times,
	// ordered by start time. Rows that do not exist are simply absent
	// from the result; the caller decides whether that is fatal.
	LockForUpdate(ctx context.Context, roomID int64, date string, startTimes []string) ([]*Slot, error)

	// LockByReservation locks the reservation's rows currently in one
	// of the given statuses.
	LockByReservation(ctx context.Context, reservationID string, statuses []Status) ([]*Slot, error)

	// LockExpiredPending locks PENDING rows untouched since before cutoff.
	LockExpiredPending(ctx context.Context, cutoff time.Time) ([]*Slot, error)

	// UpdateStatusBatch moves the rows to status and sets (or clears)
	// the owning reservation id.
	UpdateStatusBatch(ctx context.Context, ids []int64, status Status, reservationID *string) error

	CreateBatch(ctx context.Context, slots []*Slot) error

	// LockByRoomDate locks every row of the room on that date. The
	// generator diffs and mutates from this snapshot, so a reservation
	// committing mid-regeneration cannot be downgraded or deleted.
	LockByRoomDate(ctx context.Context, roomID int64, date string) ([]*Slot, error)
	DeleteByIDs(ctx context.Context, ids []int64) error

	// ListDatesBefore returns the distinct materialized dates of the
	// room strictly before cutoff, oldest first.
	ListDatesBefore(ctx context.Context, roomID int64, cutoff string) ([]string, error)
	CountActiveForDate(ctx context.Context, roomID int64, date string) (int64, error)
	DeleteForDate(ctx context.Context, roomID int64, date string) (int64, error)
}

// PolicyRepository reads room operating policies and closed-date rules.
type PolicyRepository interface {
	GetPolicy(ctx context.Context, roomID int64) (*OperatingPolicy, error)
	ListRoomIDs(ctx context.Context) ([]int64, error)
	ListClosedDateRules(ctx context.Context, roomID int64) ([]ClosedDateRule, error)
	ReplaceClosedDateRules(ctx context.Context, roomID int64, rules []ClosedDateRule) error
}

// TxManager runs f inside one database transaction. Repository calls
// made through the ctx passed to f share that transaction.
type TxManager interface {
	WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error
}

// TaskLock is distributed mutual exclusion for periodic tasks running
// on multiple replicas. Release leaves a minimum-interval floor behind
// so a freed lock cannot be re-acquired immediately by another replica.
type TaskLock interface {
	TryAcquire(ctx context.Context, name string, maxHold time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}
