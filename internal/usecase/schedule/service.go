package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
	"github.com/bookingcontrol/booker-slot-svc/internal/infrastructure/tracing"
)

// SlotUnitResolver answers the room's slot granularity, falling back
// to a configured default when the place-info service is unreachable.
type SlotUnitResolver interface {
	Resolve(ctx context.Context, roomID int64) dom.SlotUnit
}

// Service generates and retires slot rows: policy expansion for single
// dates, the request-driven range fan-out, and the rolling-window
// maintenance run.
type Service struct {
	tx       dom.TxManager
	slots    dom.SlotRepository
	policies dom.PolicyRepository
	units    SlotUnitResolver

	horizonDays   int
	retentionDays int
}

func NewService(
	tx dom.TxManager,
	slots dom.SlotRepository,
	policies dom.PolicyRepository,
	units SlotUnitResolver,
	horizonDays int,
	retentionDays int,
) *Service {
	return &Service{
		tx:            tx,
		slots:         slots,
		policies:      policies,
		units:         units,
		horizonDays:   horizonDays,
		retentionDays: retentionDays,
	}
}

// GenerateForDate materializes the room's slots for one date from its
// operating policy and closed-date rules. Closed-date rules win over
// operating entries. Regeneration is idempotent: rows that are PENDING
// or RESERVED are never touched, stale AVAILABLE/CLOSED rows are
// updated or removed in place.
func (s *Service) GenerateForDate(ctx context.Context, roomID int64, date string) error {
	ctx, span := tracing.StartSpan(ctx, "GenerateForDate")
	defer span.End()

	day, err := time.Parse(dom.DateLayout, date)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", date, err)
	}

	policy, err := s.policies.GetPolicy(ctx, roomID)
	if err != nil {
		return err
	}
	rules, err := s.policies.ListClosedDateRules(ctx, roomID)
	if err != nil {
		return err
	}

	desired := s.desiredStatuses(ctx, policy, rules, day, date)

	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.slots.LockByRoomDate(ctx, roomID, date)
		if err != nil {
			return err
		}

		var (
			toCreate []*dom.Slot
			toUpdate = make(map[dom.Status][]int64)
			toDelete []int64
			seen     = make(map[string]bool, len(existing))
		)

		for _, sl := range existing {
			seen[sl.StartTime] = true
			want, ok := desired[sl.StartTime]
			if sl.Booked() {
				// An active reservation always survives regeneration.
				continue
			}
			switch {
			case !ok:
				toDelete = append(toDelete, sl.ID)
			case sl.Status != want:
				toUpdate[want] = append(toUpdate[want], sl.ID)
			}
		}

		for startTime, status := range desired {
			if !seen[startTime] {
				toCreate = append(toCreate, &dom.Slot{
					RoomID:    roomID,
					Date:      date,
					StartTime: startTime,
					Status:    status,
				})
			}
		}

		if err := s.slots.CreateBatch(ctx, toCreate); err != nil {
			return err
		}
		for status, ids := range toUpdate {
			if err := s.slots.UpdateStatusBatch(ctx, ids, status, nil); err != nil {
				return err
			}
		}
		if err := s.slots.DeleteByIDs(ctx, toDelete); err != nil {
			return err
		}

		if len(toCreate) > 0 || len(toDelete) > 0 {
			log.Info().
				Int64("room_id", roomID).
				Str("date", date).
				Int("created", len(toCreate)).
				Int("deleted", len(toDelete)).
				Msg("Generated slots for date")
		}
		return nil
	})
}

// desiredStatuses expands the policy into start time -> status for the
// given day.
func (s *Service) desiredStatuses(ctx context.Context, policy *dom.OperatingPolicy, rules []dom.ClosedDateRule, day time.Time, date string) map[string]dom.Status {
	unit := policy.SlotUnit
	if unit == "" {
		unit = s.units.Resolve(ctx, policy.RoomID)
	}

	desired := make(map[string]dom.Status)
	for _, entry := range policy.Entries {
		if entry.Weekday != day.Weekday() || !entry.Recurrence.AppliesTo(day) {
			continue
		}
		for _, startTime := range expandEntry(entry, unit) {
			status := dom.StatusAvailable
			for _, rule := range rules {
				if rule.Matches(day, date, startTime) {
					status = dom.StatusClosed
					break
				}
			}
			// A CLOSED verdict from another entry on the same time wins.
			if prev, ok := desired[startTime]; !ok || prev == dom.StatusAvailable {
				desired[startTime] = status
			}
		}
	}
	return desired
}

// expandEntry yields the entry's start times, expanding an open range
// by the slot unit when no explicit list is set.
func expandEntry(entry dom.PolicyEntry, unit dom.SlotUnit) []string {
	if len(entry.StartTimes) > 0 {
		return entry.StartTimes
	}
	if entry.OpenFrom == "" || entry.OpenUntil == "" {
		return nil
	}

	from, err := time.Parse(dom.TimeLayout, entry.OpenFrom)
	if err != nil {
		return nil
	}
	until, err := time.Parse(dom.TimeLayout, entry.OpenUntil)
	if err != nil {
		return nil
	}

	var times []string
	step := time.Duration(unit.Minutes()) * time.Minute
	for t := from; t.Before(until); t = t.Add(step) {
		times = append(times, t.Format(dom.TimeLayout))
	}
	return times
}

// GenerateRange regenerates every date in [dateFrom, dateTo]. Driven by
// SlotGenerationRequested events and the rolling-window run.
func (s *Service) GenerateRange(ctx context.Context, roomID int64, dateFrom, dateTo string) error {
	from, err := time.Parse(dom.DateLayout, dateFrom)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", dateFrom, err)
	}
	to, err := time.Parse(dom.DateLayout, dateTo)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", dateTo, err)
	}

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if err := s.GenerateForDate(ctx, roomID, day.Format(dom.DateLayout)); err != nil {
			return fmt.Errorf("generate %s: %w", day.Format(dom.DateLayout), err)
		}
	}
	return nil
}

// DeleteSlotsForDate hard-deletes the room's rows for a past date. A
// PENDING or RESERVED row on that date means a reservation spans the
// retention boundary: the whole delete aborts with
// ErrRetentionViolation instead of silently dropping it. The delete
// statement itself skips active rows, and the count runs after it in
// the same transaction, so a reservation committing mid-run rolls the
// whole delete back rather than losing rows.
func (s *Service) DeleteSlotsForDate(ctx context.Context, roomID int64, date string) error {
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		deleted, err := s.slots.DeleteForDate(ctx, roomID, date)
		if err != nil {
			return err
		}

		active, err := s.slots.CountActiveForDate(ctx, roomID, date)
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("room %d, date %s has %d active slots: %w",
				roomID, date, active, dom.ErrRetentionViolation)
		}
		log.Info().
			Int64("room_id", roomID).
			Str("date", date).
			Int64("deleted", deleted).
			Msg("Deleted slots outside retention window")
		return nil
	})
}

// ReplaceClosedDates swaps the room's closed-date rules and regenerates
// the future horizon so the new rules take effect. Past dates are left
// alone.
func (s *Service) ReplaceClosedDates(ctx context.Context, roomID int64, rules []dom.ClosedDateRule) error {
	if err := s.policies.ReplaceClosedDateRules(ctx, roomID, rules); err != nil {
		return err
	}

	today := time.Now().Format(dom.DateLayout)
	end := time.Now().AddDate(0, 0, s.horizonDays).Format(dom.DateLayout)
	return s.GenerateRange(ctx, roomID, today, end)
}

// MaintainWindow advances the rolling window for every room with a
// policy: the horizon ahead is generated, dates behind the retention
// cutoff are deleted. A retention violation aborts the whole run so
// the scheduling infrastructure can alert on it.
func (s *Service) MaintainWindow(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "MaintainWindow")
	defer span.End()

	rooms, err := s.policies.ListRoomIDs(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	today := now.Format(dom.DateLayout)
	end := now.AddDate(0, 0, s.horizonDays).Format(dom.DateLayout)
	cutoff := now.AddDate(0, 0, -s.retentionDays).Format(dom.DateLayout)

	for _, roomID := range rooms {
		if err := s.GenerateRange(ctx, roomID, today, end); err != nil {
			return fmt.Errorf("room %d: %w", roomID, err)
		}

		dates, err := s.slots.ListDatesBefore(ctx, roomID, cutoff)
		if err != nil {
			return fmt.Errorf("room %d: %w", roomID, err)
		}
		for _, date := range dates {
			if err := s.DeleteSlotsForDate(ctx, roomID, date); err != nil {
				return fmt.Errorf("room %d: %w", roomID, err)
			}
		}
	}

	log.Info().
		Int("rooms", len(rooms)).
		Str("horizon_end", end).
		Msg("Rolling window maintained")
	return nil
}
