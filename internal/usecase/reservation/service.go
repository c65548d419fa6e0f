package reservation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
	"github.com/bookingcontrol/booker-slot-svc/internal/infrastructure/tracing"
)

// Service is the reservation state machine. Every operation runs its
// slot transitions and the matching outbox append in one transaction,
// then wakes the dispatcher once the commit is through.
type Service struct {
	tx       dom.TxManager
	slots    dom.SlotRepository
	outbox   dom.OutboxRepository
	notifier dom.OutboxNotifier
}

func NewService(tx dom.TxManager, slots dom.SlotRepository, outbox dom.OutboxRepository, notifier dom.OutboxNotifier) *Service {
	return &Service{
		tx:       tx,
		slots:    slots,
		outbox:   outbox,
		notifier: notifier,
	}
}

// ReserveBatch moves every named slot AVAILABLE -> PENDING under one
// reservation id. The target rows are locked before their status is
// read, so two competing batches serialize and the loser sees the
// winner's PENDING rows. Any slot missing or not AVAILABLE fails the
// whole batch; nothing is partially transitioned.
func (s *Service) ReserveBatch(ctx context.Context, roomID int64, date string, startTimes []string, reservationID string) error {
	ctx, span := tracing.StartSpan(ctx, "ReserveBatch")
	defer span.End()

	if len(startTimes) == 0 {
		return fmt.Errorf("reserve batch: no start times given")
	}

	entryID, err := s.transition(ctx, func(ctx context.Context) (dom.Event, error) {
		slots, err := s.slots.LockForUpdate(ctx, roomID, date, startTimes)
		if err != nil {
			return nil, err
		}
		if len(slots) != len(startTimes) {
			return nil, fmt.Errorf("room %d, date %s: want %d slots, found %d: %w",
				roomID, date, len(startTimes), len(slots), dom.ErrSlotNotFound)
		}

		ids := make([]int64, 0, len(slots))
		for _, sl := range slots {
			if sl.Status != dom.StatusAvailable {
				return nil, fmt.Errorf("slot %s %s is %s: %w",
					sl.Date, sl.StartTime, sl.Status, dom.ErrSlotConflict)
			}
			ids = append(ids, sl.ID)
		}

		if err := s.slots.UpdateStatusBatch(ctx, ids, dom.StatusPending, &reservationID); err != nil {
			return nil, err
		}

		return dom.SlotReserved{
			RoomID:        roomID,
			SlotDate:      date,
			StartTimes:    startTimes,
			ReservationID: reservationID,
		}, nil
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(entryID)

	log.Info().
		Int64("room_id", roomID).
		Str("date", date).
		Int("slots", len(startTimes)).
		Str("reservation_id", reservationID).
		Msg("Slots reserved")

	return nil
}

// Confirm moves the reservation's PENDING slots to RESERVED after the
// payment went through.
func (s *Service) Confirm(ctx context.Context, reservationID string) error {
	ctx, span := tracing.StartSpan(ctx, "Confirm")
	defer span.End()

	entryID, err := s.transition(ctx, func(ctx context.Context) (dom.Event, error) {
		slots, err := s.slots.LockByReservation(ctx, reservationID, []dom.Status{dom.StatusPending})
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			return nil, fmt.Errorf("no pending slots for reservation %s: %w",
				reservationID, dom.ErrReservationNotFound)
		}

		if err := s.slots.UpdateStatusBatch(ctx, slotIDs(slots), dom.StatusReserved, &reservationID); err != nil {
			return nil, err
		}

		return dom.SlotConfirmed{ReservationID: reservationID}, nil
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(entryID)

	log.Info().Str("reservation_id", reservationID).Msg("Reservation confirmed")

	return nil
}

// Cancel returns the reservation's PENDING or RESERVED slots to
// AVAILABLE and clears their reservation id. A second cancel finds
// nothing to transition and succeeds without emitting anything.
func (s *Service) Cancel(ctx context.Context, reservationID, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "Cancel")
	defer span.End()

	var alreadyCancelled bool

	entryID, err := s.transition(ctx, func(ctx context.Context) (dom.Event, error) {
		slots, err := s.slots.LockByReservation(ctx, reservationID,
			[]dom.Status{dom.StatusPending, dom.StatusReserved})
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			alreadyCancelled = true
			return nil, nil
		}

		if err := s.slots.UpdateStatusBatch(ctx, slotIDs(slots), dom.StatusAvailable, nil); err != nil {
			return nil, err
		}

		return dom.SlotCancelled{ReservationID: reservationID, CancelReason: reason}, nil
	})
	if err != nil {
		return err
	}

	if alreadyCancelled {
		log.Warn().Str("reservation_id", reservationID).Msg("Reservation already cancelled, nothing to do")
		return nil
	}

	s.notifier.Notify(entryID)

	log.Info().
		Str("reservation_id", reservationID).
		Str("reason", reason).
		Msg("Reservation cancelled")

	return nil
}

// RestoreExpiredPending reverts slots stuck in PENDING longer than
// threshold back to AVAILABLE, one SlotRestored event per abandoned
// reservation. It returns the number of restored slots. Runs as a
// maintenance sweep, not attached to any request.
func (s *Service) RestoreExpiredPending(ctx context.Context, threshold time.Duration) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "RestoreExpiredPending")
	defer span.End()

	var (
		restored int
		entryIDs []uuid.UUID
	)

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		cutoff := time.Now().Add(-threshold)
		slots, err := s.slots.LockExpiredPending(ctx, cutoff)
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			return nil
		}

		byReservation := make(map[string][]int64)
		for _, sl := range slots {
			key := ""
			if sl.ReservationID != nil {
				key = *sl.ReservationID
			}
			byReservation[key] = append(byReservation[key], sl.ID)
		}

		reservationIDs := make([]string, 0, len(byReservation))
		for id := range byReservation {
			reservationIDs = append(reservationIDs, id)
		}
		sort.Strings(reservationIDs)

		now := time.Now()
		for _, reservationID := range reservationIDs {
			ids := byReservation[reservationID]
			if err := s.slots.UpdateStatusBatch(ctx, ids, dom.StatusAvailable, nil); err != nil {
				return err
			}
			restored += len(ids)

			if reservationID == "" {
				// A PENDING slot without an owner violates the slot
				// invariant; restore it but there is nothing to announce.
				log.Error().Ints64("slot_ids", ids).Msg("Restored pending slots with no reservation id")
				continue
			}

			entry, err := dom.NewOutboxEntry(dom.SlotRestored{ReservationID: reservationID}, now)
			if err != nil {
				return err
			}
			if err := s.outbox.Add(ctx, entry); err != nil {
				return err
			}
			entryIDs = append(entryIDs, entry.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, id := range entryIDs {
		s.notifier.Notify(id)
	}

	if restored > 0 {
		log.Info().
			Int("slots", restored).
			Int("reservations", len(entryIDs)).
			Msg("Restored expired pending slots")
	}

	return restored, nil
}

// transition runs f in a transaction and, when f yields an event,
// appends it to the outbox inside that same transaction. The returned
// id is only valid when err is nil and f produced an event.
func (s *Service) transition(ctx context.Context, f func(ctx context.Context) (dom.Event, error)) (uuid.UUID, error) {
	var entryID uuid.UUID

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		ev, err := f(ctx)
		if err != nil {
			return err
		}
		if ev == nil {
			return nil
		}

		entry, err := dom.NewOutboxEntry(ev, time.Now())
		if err != nil {
			return err
		}
		if err := s.outbox.Add(ctx, entry); err != nil {
			return err
		}
		entryID = entry.ID
		return nil
	})

	return entryID, err
}

func slotIDs(slots []*dom.Slot) []int64 {
	ids := make([]int64, len(slots))
	for i, sl := range slots {
		ids[i] = sl.ID
	}
	return ids
}
