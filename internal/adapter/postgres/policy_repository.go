package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
	"github.com/bookingcontrol/booker-slot-svc/internal/infrastructure/postgres"
)

// PolicyRepository reads room operating policies and closed-date rules.
type PolicyRepository struct {
	pg *postgres.Postgres
}

func NewPolicyRepository(pg *postgres.Postgres) *PolicyRepository {
	return &PolicyRepository{pg: pg}
}

func (r *PolicyRepository) GetPolicy(ctx context.Context, roomID int64) (*dom.OperatingPolicy, error) {
	executor := r.pg.GetExecutor(ctx)

	var unit *string
	err := executor.QueryRow(ctx,
		`SELECT slot_unit FROM room_policies WHERE room_id = $1`, roomID).Scan(&unit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("room %d: %w", roomID, dom.ErrPolicyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query policy: %w", err)
	}

	policy := &dom.OperatingPolicy{RoomID: roomID}
	if unit != nil {
		policy.SlotUnit = dom.SlotUnit(*unit)
	}

	rows, err := executor.Query(ctx,
		`SELECT weekday, recurrence, start_times,
			coalesce(to_char(open_from, 'HH24:MI'), ''),
			coalesce(to_char(open_until, 'HH24:MI'), '')
		FROM policy_entries WHERE room_id = $1
		ORDER BY weekday, recurrence`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query policy entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry   dom.PolicyEntry
			weekday int16
		)
		if err := rows.Scan(&weekday, &entry.Recurrence, &entry.StartTimes, &entry.OpenFrom, &entry.OpenUntil); err != nil {
			return nil, fmt.Errorf("scan policy entry: %w", err)
		}
		entry.Weekday = time.Weekday(weekday)
		policy.Entries = append(policy.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policy entries: %w", err)
	}

	return policy, nil
}

func (r *PolicyRepository) ListRoomIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pg.GetExecutor(ctx).Query(ctx,
		`SELECT room_id FROM room_policies ORDER BY room_id`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return ids, nil
}

func (r *PolicyRepository) ListClosedDateRules(ctx context.Context, roomID int64) ([]dom.ClosedDateRule, error) {
	rows, err := r.pg.GetExecutor(ctx).Query(ctx,
		`SELECT coalesce(to_char(date_from, 'YYYY-MM-DD'), ''),
			coalesce(to_char(date_to, 'YYYY-MM-DD'), ''),
			weekday, coalesce(recurrence, ''),
			coalesce(to_char(time_from, 'HH24:MI'), ''),
			coalesce(to_char(time_until, 'HH24:MI'), '')
		FROM closed_date_rules WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query closed dates: %w", err)
	}
	defer rows.Close()

	var rules []dom.ClosedDateRule
	for rows.Next() {
		var (
			rule    dom.ClosedDateRule
			weekday *int16
		)
		if err := rows.Scan(&rule.DateFrom, &rule.DateTo, &weekday, &rule.Recurrence, &rule.TimeFrom, &rule.TimeUntil); err != nil {
			return nil, fmt.Errorf("scan closed date rule: %w", err)
		}
		rule.RoomID = roomID
		if weekday != nil {
			wd := time.Weekday(*weekday)
			rule.Weekday = &wd
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed dates: %w", err)
	}
	return rules, nil
}

func (r *PolicyRepository) ReplaceClosedDateRules(ctx context.Context, roomID int64, rules []dom.ClosedDateRule) error {
	executor := r.pg.GetExecutor(ctx)

	if _, err := executor.Exec(ctx, `DELETE FROM closed_date_rules WHERE room_id = $1`, roomID); err != nil {
		return fmt.Errorf("clear closed dates: %w", err)
	}
	if len(rules) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO closed_date_rules (room_id, date_from, date_to, weekday, recurrence, time_from, time_until) VALUES `)
	args := make([]any, 0, len(rules)*7)
	for i, rule := range rules {
		if i > 0 {
			sb.WriteString(",")
		}
		n := i * 7
		fmt.Fprintf(&sb, "($%d, nullif($%d, '')::date, nullif($%d, '')::date, $%d, nullif($%d, ''), nullif($%d, '')::time, nullif($%d, '')::time)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7)
		var weekday *int16
		if rule.Weekday != nil {
			wd := int16(*rule.Weekday)
			weekday = &wd
		}
		args = append(args, roomID, rule.DateFrom, rule.DateTo, weekday, string(rule.Recurrence), rule.TimeFrom, rule.TimeUntil)
	}
	if _, err := executor.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert closed dates: %w", err)
	}
	return nil
}
