package slot

import "time"

// PolicyEntry is one weekly operating-hours rule. Either StartTimes is
// set explicitly, or OpenFrom/OpenUntil describe a range that gets
// expanded by the room's slot unit at generation time.
type PolicyEntry struct {
	Weekday    time.Weekday
	Recurrence Recurrence
	StartTimes []string
	OpenFrom   string // HH:MM, inclusive
	OpenUntil  string // HH:MM, exclusive
}

// OperatingPolicy is the per-room slot layout. SlotUnit may be empty,
// in which case the place-info source (or its fallback) decides.
type OperatingPolicy struct {
	RoomID   int64
	SlotUnit SlotUnit
	Entries  []PolicyEntry
}

// ClosedDateRule blocks slots from being bookable. It comes in two
// forms: a date range (DateFrom/DateTo set) or a weekly pattern
// (Weekday set, with a recurrence). An empty time range closes the
// whole day; otherwise only start times within [TimeFrom, TimeUntil)
// are closed.
type ClosedDateRule struct {
	RoomID     int64
	DateFrom   string // YYYY-MM-DD, inclusive
	DateTo     string // YYYY-MM-DD, inclusive
	Weekday    *time.Weekday
	Recurrence Recurrence
	TimeFrom   string // HH:MM, inclusive
	TimeUntil  string // HH:MM, exclusive
}

// Matches reports whether the rule closes the slot at (date, startTime).
// ISO-formatted date and time strings compare correctly as text.
func (r ClosedDateRule) Matches(date time.Time, dateStr, startTime string) bool {
	switch {
	case r.DateFrom != "":
		if dateStr < r.DateFrom || dateStr > r.DateTo {
			return false
		}
	case r.Weekday != nil:
		if date.Weekday() != *r.Weekday || !r.Recurrence.AppliesTo(date) {
			return false
		}
	default:
		return false
	}
	if r.TimeFrom == "" {
		return true
	}
	return startTime >= r.TimeFrom && startTime < r.TimeUntil
}
