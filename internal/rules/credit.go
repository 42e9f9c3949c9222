package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/shopspring/decimal"
)

// ResolveServiceCredit returns the total credited service years for a
// member's history as of the given date.
func ResolveServiceCredit(entries []domain.ServiceHistoryEntry, asOf time.Time, maxPurchased decimal.Decimal) (decimal.Decimal, error) {
	credit, err := ResolveServiceCreditDetail(entries, asOf, maxPurchased)
	if err != nil {
		return decimal.Zero, err
	}
	return credit.TotalYears, nil
}

// period is a service entry as a half-open date range [start, end).
type period struct {
	index int
	start time.Time
	end   time.Time
}

// ResolveServiceCreditDetail aggregates service history into earned and
// purchased credit. Purchased credit counts toward the total only up to
// maxPurchased. Open-ended entries accrue from their start date to asOf.
//
// Entries that end before they start, carry negative credit or overlap each
// other are rejected with a ValidationError.
func ResolveServiceCreditDetail(entries []domain.ServiceHistoryEntry, asOf time.Time, maxPurchased decimal.Decimal) (domain.ServiceCredit, error) {
	if maxPurchased.IsNegative() {
		return domain.ServiceCredit{}, domain.NewValidationError("maxPurchasedYears", fmt.Sprintf("must not be negative, got %s", maxPurchased))
	}

	asOf = dateOnly(asOf)
	earned := decimal.Zero
	purchased := decimal.Zero
	periods := make([]period, 0, len(entries))

	for i, e := range entries {
		start := dateOnly(e.StartDate)
		var end time.Time
		var years decimal.Decimal

		if e.IsOpen() {
			if start.After(asOf) {
				return domain.ServiceCredit{}, domain.NewValidationError(
					fmt.Sprintf("entries[%d].startDate", i),
					fmt.Sprintf("open-ended entry starts %s, after as-of date %s", start.Format(time.DateOnly), asOf.Format(time.DateOnly)),
				)
			}
			end = asOf
			years = fractionalYears(start, asOf)
		} else {
			end = dateOnly(*e.EndDate)
			if end.Before(start) {
				return domain.ServiceCredit{}, domain.NewValidationError(
					fmt.Sprintf("entries[%d].endDate", i),
					fmt.Sprintf("end date %s is before start date %s", end.Format(time.DateOnly), start.Format(time.DateOnly)),
				)
			}
			if e.CreditedYears.IsNegative() {
				return domain.ServiceCredit{}, domain.NewValidationError(
					fmt.Sprintf("entries[%d].creditedYears", i),
					fmt.Sprintf("must not be negative, got %s", e.CreditedYears),
				)
			}
			years = e.CreditedYears
		}

		// A single-day entry still occupies its start date.
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		periods = append(periods, period{index: i, start: start, end: end})

		if e.Purchased {
			purchased = purchased.Add(years)
		} else {
			earned = earned.Add(years)
		}
	}

	if err := checkOverlap(periods); err != nil {
		return domain.ServiceCredit{}, err
	}

	credited := decimal.Min(purchased, maxPurchased)

	return domain.ServiceCredit{
		EarnedYears:            round2(earned),
		PurchasedYears:         round2(purchased),
		PurchasedYearsCredited: round2(credited),
		TotalYears:             round2(earned.Add(credited)),
	}, nil
}

// checkOverlap rejects any two periods that share a date.
func checkOverlap(periods []period) error {
	if len(periods) < 2 {
		return nil
	}

	sorted := make([]period, len(periods))
	copy(sorted, periods)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].start.Before(sorted[j].start)
	})

	latest := sorted[0]
	for _, p := range sorted[1:] {
		if p.start.Before(latest.end) {
			first, second := latest.index, p.index
			if first > second {
				first, second = second, first
			}
			return domain.NewValidationError("entries", fmt.Sprintf(
				"entries %d and %d overlap starting %s", first, second, p.start.Format(time.DateOnly),
			))
		}
		if p.end.After(latest.end) {
			latest = p
		}
	}
	return nil
}
