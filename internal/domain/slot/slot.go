package slot

import (
	"time"
)

// Status is the lifecycle state of a single bookable slot.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusPending   Status = "PENDING"
	StatusReserved  Status = "RESERVED"
	StatusClosed    Status = "CLOSED"
	StatusCancelled Status = "CANCELLED"
)

// SlotUnit is the granularity a room is sliced into when an operating
// entry specifies an open range instead of explicit start times.
type SlotUnit string

const (
	UnitHour     SlotUnit = "HOUR"
	UnitHalfHour SlotUnit = "HALF_HOUR"
)

// Minutes returns the slot duration for the unit.
func (u SlotUnit) Minutes() int {
	if u == UnitHalfHour {
		return 30
	}
	return 60
}

// Slot represents one bookable (room, date, start time) cell.
// ReservationID is non-nil iff Status is PENDING or RESERVED.
type Slot struct {
	ID            int64
	RoomID        int64
	Date          string // YYYY-MM-DD
	StartTime     string // HH:MM
	Status        Status
	ReservationID *string
	UpdatedAt     time.Time
}

// Booked reports whether the slot currently belongs to a reservation.
func (s *Slot) Booked() bool {
	return s.Status == StatusPending || s.Status == StatusReserved
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)
