package slot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecurrence_AppliesTo(t *testing.T) {
	testCases := []struct {
		name       string
		recurrence Recurrence
		date       string
		want       bool
	}{
		{name: "every week always applies", recurrence: EveryWeek, date: "2024-06-01", want: true},
		{name: "every week on year boundary", recurrence: EveryWeek, date: "2024-12-31", want: true},
		// 2024-06-01 falls in ISO week 22.
		{name: "even week on week 22", recurrence: EvenWeek, date: "2024-06-01", want: true},
		{name: "odd week on week 22", recurrence: OddWeek, date: "2024-06-01", want: false},
		// 2024-06-03 starts ISO week 23.
		{name: "odd week on week 23", recurrence: OddWeek, date: "2024-06-03", want: true},
		{name: "even week on week 23", recurrence: EvenWeek, date: "2024-06-03", want: false},
		// 2021-01-01 belongs to ISO week 53 of 2020.
		{name: "odd week on ISO week 53 of previous year", recurrence: OddWeek, date: "2021-01-01", want: true},
		{name: "even week on ISO week 53 of previous year", recurrence: EvenWeek, date: "2021-01-01", want: false},
		{name: "unknown recurrence behaves as every week", recurrence: Recurrence(""), date: "2024-06-01", want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			date, err := time.Parse(DateLayout, tc.date)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, tc.recurrence.AppliesTo(date))
		})
	}
}

func TestRecurrence_OddEvenNeverBothActive(t *testing.T) {
	// Odd and even rules are mutually exclusive for every calendar date,
	// which is what lets their start-time lists overlap safely.
	day, _ := time.Parse(DateLayout, "2024-01-01")
	for i := 0; i < 730; i++ {
		d := day.AddDate(0, 0, i)
		assert.NotEqual(t, OddWeek.AppliesTo(d), EvenWeek.AppliesTo(d), "date %s", d.Format(DateLayout))
	}
}
