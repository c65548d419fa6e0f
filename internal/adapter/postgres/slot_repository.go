package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
	"github.com/bookingcontrol/booker-slot-svc/internal/infrastructure/postgres"
)

// SlotRepository is the pgx implementation of dom.SlotRepository.
// Statements go through the tx-aware executor, so calls made inside
// TxManager.WithinTransaction share the caller's transaction.
type SlotRepository struct {
	pg *postgres.Postgres
}

func NewSlotRepository(pg *postgres.Postgres) *SlotRepository {
	return &SlotRepository{pg: pg}
}

const slotColumns = `id, room_id, to_char(slot_date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'), status, reservation_id, updated_at`

func (r *SlotRepository) scanSlots(ctx context.Context, query string, args ...any) ([]*dom.Slot, error) {
	rows, err := r.pg.GetExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var slots []*dom.Slot
	for rows.Next() {
		var s dom.Slot
		if err := rows.Scan(&s.ID, &s.RoomID, &s.Date, &s.StartTime, &s.Status, &s.ReservationID, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return slots, nil
}

func (r *SlotRepository) LockForUpdate(ctx context.Context, roomID int64, date string, startTimes []string) ([]*dom.Slot, error) {
	query := `SELECT ` + slotColumns + `
		FROM slots
		WHERE room_id = $1 AND slot_date = $2::date AND start_time = ANY($3::time[])
		ORDER BY start_time
		FOR UPDATE`
	return r.scanSlots(ctx, query, roomID, date, startTimes)
}

func (r *SlotRepository) LockByReservation(ctx context.Context, reservationID string, statuses []dom.Status) ([]*dom.Slot, error) {
	query := `SELECT ` + slotColumns + `
		FROM slots
		WHERE reservation_id = $1 AND status = ANY($2)
		ORDER BY slot_date, start_time
		FOR UPDATE`
	return r.scanSlots(ctx, query, reservationID, statusStrings(statuses))
}

func (r *SlotRepository) LockExpiredPending(ctx context.Context, cutoff time.Time) ([]*dom.Slot, error) {
	query := `SELECT ` + slotColumns + `
		FROM slots
		WHERE status = $1 AND updated_at < $2
		ORDER BY reservation_id, slot_date, start_time
		FOR UPDATE SKIP LOCKED`
	return r.scanSlots(ctx, query, dom.StatusPending, cutoff)
}

func (r *SlotRepository) UpdateStatusBatch(ctx context.Context, ids []int64, status dom.Status, reservationID *string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE slots SET status = $1, reservation_id = $2, updated_at = now() WHERE id = ANY($3)`
	if _, err := r.pg.GetExecutor(ctx).Exec(ctx, query, status, reservationID, ids); err != nil {
		return fmt.Errorf("update slot status: %w", err)
	}
	return nil
}

func (r *SlotRepository) CreateBatch(ctx context.Context, slots []*dom.Slot) error {
	if len(slots) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO slots (room_id, slot_date, start_time, status, reservation_id, updated_at) VALUES `)
	args := make([]any, 0, len(slots)*5)
	for i, s := range slots {
		if i > 0 {
			sb.WriteString(",")
		}
		n := i * 5
		fmt.Fprintf(&sb, "($%d, $%d::date, $%d::time, $%d, $%d, now())", n+1, n+2, n+3, n+4, n+5)
		args = append(args, s.RoomID, s.Date, s.StartTime, s.Status, s.ReservationID)
	}
	if _, err := r.pg.GetExecutor(ctx).Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert slots: %w", err)
	}
	return nil
}

func (r *SlotRepository) LockByRoomDate(ctx context.Context, roomID int64, date string) ([]*dom.Slot, error) {
	query := `SELECT ` + slotColumns + `
		FROM slots
		WHERE room_id = $1 AND slot_date = $2::date
		ORDER BY start_time
		FOR UPDATE`
	return r.scanSlots(ctx, query, roomID, date)
}

func (r *SlotRepository) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.pg.GetExecutor(ctx).Exec(ctx, `DELETE FROM slots WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete slots: %w", err)
	}
	return nil
}

func (r *SlotRepository) ListDatesBefore(ctx context.Context, roomID int64, cutoff string) ([]string, error) {
	query := `SELECT DISTINCT to_char(slot_date, 'YYYY-MM-DD')
		FROM slots
		WHERE room_id = $1 AND slot_date < $2::date
		ORDER BY 1`
	rows, err := r.pg.GetExecutor(ctx).Query(ctx, query, roomID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates: %w", err)
	}
	return dates, nil
}

func (r *SlotRepository) CountActiveForDate(ctx context.Context, roomID int64, date string) (int64, error) {
	query := `SELECT count(*) FROM slots
		WHERE room_id = $1 AND slot_date = $2::date AND status = ANY($3)`
	var n int64
	err := r.pg.GetExecutor(ctx).QueryRow(ctx, query, roomID, date,
		statusStrings([]dom.Status{dom.StatusPending, dom.StatusReserved})).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active slots: %w", err)
	}
	return n, nil
}

// DeleteForDate removes the date's rows except those holding an active
// reservation. The guard lives in the statement itself so no interleaving
// can delete a PENDING or RESERVED row.
func (r *SlotRepository) DeleteForDate(ctx context.Context, roomID int64, date string) (int64, error) {
	tag, err := r.pg.GetExecutor(ctx).Exec(ctx,
		`DELETE FROM slots
		WHERE room_id = $1 AND slot_date = $2::date AND NOT (status = ANY($3))`,
		roomID, date, statusStrings([]dom.Status{dom.StatusPending, dom.StatusReserved}))
	if err != nil {
		return 0, fmt.Errorf("delete slots for date: %w", err)
	}
	return tag.RowsAffected(), nil
}

func statusStrings(statuses []dom.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
