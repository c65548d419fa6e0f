package slot

import "errors"

var (
	// ErrSlotConflict means a target slot was not AVAILABLE when a
	// reservation batch tried to take it. The loser must retry with
	// fresh state; nothing is queued.
	ErrSlotConflict = errors.New("slot is not available")

	// ErrSlotNotFound means a named (room, date, time) row does not exist.
	ErrSlotNotFound = errors.New("slot not found")

	// ErrReservationNotFound means no slots in the expected status carry
	// the reservation id.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrPolicyNotFound means the room has no operating policy.
	ErrPolicyNotFound = errors.New("operating policy not found")

	// ErrRetentionViolation means a past date slated for deletion still
	// holds PENDING or RESERVED slots. The cleanup run must abort and
	// alert rather than drop them.
	ErrRetentionViolation = errors.New("date still has active reservations")

	// ErrUnknownEventType means an inbound payload names an event kind
	// outside the closed set.
	ErrUnknownEventType = errors.New("unknown event type")
)
