package rules

import (
	"sort"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/shopspring/decimal"
)

// StateContribution is one state's row in a contribution summary.
type StateContribution struct {
	State                    domain.StateCode `json:"state"`
	Name                     string           `json:"name"`
	MinContributionRate      decimal.Decimal  `json:"minContributionRate"`
	MaxContributionRate      decimal.Decimal  `json:"maxContributionRate"`
	EmployerContributionRate decimal.Decimal  `json:"employerContributionRate"`
	Multiplier               decimal.Decimal  `json:"multiplier"`
	MinRetirementAge         int              `json:"minRetirementAge"`
	EarlyRetirementAge       int              `json:"earlyRetirementAge"`
	VestingYears             decimal.Decimal  `json:"vestingYears"`
	COLARate                 decimal.Decimal  `json:"colaRate"`
}

// ContributionSummary compares contribution terms across states.
type ContributionSummary struct {
	States                  []StateContribution `json:"states"`
	AverageMaxEmployeeRate  decimal.Decimal     `json:"averageMaxEmployeeRate"`
	AverageEmployerRate     decimal.Decimal     `json:"averageEmployerRate"`
	AverageMultiplier       decimal.Decimal     `json:"averageMultiplier"`
	AverageMinRetirementAge decimal.Decimal     `json:"averageMinRetirementAge"`
}

// SummarizeStates builds a contribution summary sorted by state code.
// Averages are rounded to four places.
func SummarizeStates(sets []*domain.StateRuleSet) ContributionSummary {
	summary := ContributionSummary{States: make([]StateContribution, 0, len(sets))}

	var maxRate, employer, multiplier, age decimal.Decimal
	for _, rs := range sets {
		summary.States = append(summary.States, StateContribution{
			State:                    rs.State,
			Name:                     rs.Name,
			MinContributionRate:      rs.MinContributionRate,
			MaxContributionRate:      rs.MaxContributionRate,
			EmployerContributionRate: rs.EmployerContributionRate,
			Multiplier:               rs.Multiplier,
			MinRetirementAge:         rs.MinRetirementAge,
			EarlyRetirementAge:       rs.EarlyRetirementAge,
			VestingYears:             rs.VestingYears,
			COLARate:                 rs.COLARate,
		})
		maxRate = maxRate.Add(rs.MaxContributionRate)
		employer = employer.Add(rs.EmployerContributionRate)
		multiplier = multiplier.Add(rs.Multiplier)
		age = age.Add(decimal.NewFromInt(int64(rs.MinRetirementAge)))
	}

	sort.Slice(summary.States, func(i, j int) bool {
		return summary.States[i].State < summary.States[j].State
	})

	if n := len(sets); n > 0 {
		count := decimal.NewFromInt(int64(n))
		summary.AverageMaxEmployeeRate = maxRate.Div(count).Round(4)
		summary.AverageEmployerRate = employer.Div(count).Round(4)
		summary.AverageMultiplier = multiplier.Div(count).Round(4)
		summary.AverageMinRetirementAge = age.Div(count).Round(4)
	}

	return summary
}
