// Package payment contains the payment plan aggregate and the pure functions
// that derive its installment calendar.
package payment

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used by forms and records
const DateLayout = "2006-01-02"

// biweeklyStep is the gap between biweekly installments, in calendar days
const biweeklyStep = 15

// Frequency is how often an installment falls due
type Frequency string

const (
	FrequencyMonthly  Frequency = "monthly"
	FrequencyBiweekly Frequency = "biweekly"
)

// IsValid returns true if the frequency is supported
func (f Frequency) IsValid() bool {
	return f == FrequencyMonthly || f == FrequencyBiweekly
}

// ParseFrequency accepts the stored form plus a few spellings seen in older records
func ParseFrequency(s string) (Frequency, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "mensual":
		return FrequencyMonthly, true
	case "biweekly", "quincenal", "fortnightly":
		return FrequencyBiweekly, true
	}
	return "", false
}

// ParseDate parses a YYYY-MM-DD date. Anything else returns ok=false.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ComputeSchedule returns the due dates between start and end inclusive.
//
// Monthly schedules anchor on start's day of month and clamp it to the last day
// of shorter months. Biweekly schedules step 15 calendar days from start.
// A zero date, an unknown frequency, or start after end yields no dates.
func ComputeSchedule(start, end time.Time, freq Frequency) []time.Time {
	if start.IsZero() || end.IsZero() {
		return nil
	}
	start = truncateDay(start)
	end = truncateDay(end)
	if start.After(end) {
		return nil
	}

	var dates []time.Time
	switch freq {
	case FrequencyMonthly:
		anchor := start.Day()
		for i := 0; ; i++ {
			d := monthlyDate(start.Year(), start.Month()+time.Month(i), anchor, start.Location())
			if d.After(end) {
				break
			}
			if !d.Before(start) {
				dates = append(dates, d)
			}
		}
	case FrequencyBiweekly:
		for d := start; !d.After(end); d = d.AddDate(0, 0, biweeklyStep) {
			dates = append(dates, d)
		}
	}
	return dates
}

// ComputeScheduleFromStrings is ComputeSchedule over form inputs.
// Missing or unparseable dates yield no dates.
func ComputeScheduleFromStrings(start, end string, freq Frequency) []time.Time {
	s, ok := ParseDate(start)
	if !ok {
		return nil
	}
	e, ok := ParseDate(end)
	if !ok {
		return nil
	}
	return ComputeSchedule(s, e, freq)
}

// SplitInstallments splits total into n amounts truncated to cents, with the
// last amount absorbing the remainder so that the amounts sum to total rounded
// to cents. n < 1 yields nil.
func SplitInstallments(total decimal.Decimal, n int) []decimal.Decimal {
	if n < 1 {
		return nil
	}
	target := total.Round(2)
	each := total.Div(decimal.NewFromInt(int64(n))).Shift(2).Floor().Shift(-2)

	amounts := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		amounts[i] = each
	}
	amounts[n-1] = target.Sub(each.Mul(decimal.NewFromInt(int64(n - 1))))
	return amounts
}

// monthlyDate builds year/month/day with day clamped to the month's length.
// month may be outside 1..12; time.Date normalizes it.
func monthlyDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, loc)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
