package rules

import (
	"time"

	"github.com/shopspring/decimal"
)

// Amounts and years are rounded to two places, half away from zero. Inputs
// are never negative where this is applied, so that is round-half-up.
const roundPlaces = 2

var (
	one         = decimal.NewFromInt(1)
	twelve      = decimal.NewFromInt(12)
	half        = decimal.RequireFromString("0.5")
	daysPerYear = decimal.RequireFromString("365.25")
)

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(roundPlaces)
}

func clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// dateOnly drops the time of day so service periods compare by calendar date.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fractionalYears is the number of days between two dates over 365.25.
func fractionalYears(from, to time.Time) decimal.Decimal {
	days := int64(dateOnly(to).Sub(dateOnly(from)).Hours() / 24)
	return decimal.NewFromInt(days).Div(daysPerYear)
}
