package slot

import "time"

// Recurrence decides for which calendar weeks a weekly rule is active.
type Recurrence string

const (
	EveryWeek Recurrence = "EVERY_WEEK"
	OddWeek   Recurrence = "ODD_WEEK"
	EvenWeek  Recurrence = "EVEN_WEEK"
)

// AppliesTo reports whether the rule is active on the given date.
// Odd/even parity follows the ISO week-of-year number, so the boundary
// weeks around New Year belong to whichever year ISO 8601 assigns them.
func (r Recurrence) AppliesTo(date time.Time) bool {
	switch r {
	case OddWeek:
		_, week := date.ISOWeek()
		return week%2 == 1
	case EvenWeek:
		_, week := date.ISOWeek()
		return week%2 == 0
	default:
		return true
	}
}
