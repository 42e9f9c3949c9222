package rules

import (
	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/shopspring/decimal"
)

// Component weights. They sum to 100.
var (
	ageWeight          = decimal.NewFromInt(40)
	serviceWeight      = decimal.NewFromInt(40)
	contributionWeight = decimal.NewFromInt(20)
	ageRampYears       = decimal.NewFromInt(10)
)

// Score computes the advisory retirement readiness score.
//
// Each component contributes a linear share of its weight:
//   - age proximity: 0 at ten years before the minimum retirement age, full at it
//   - service proximity: 0 at no service, full at the minimum service years
//   - contribution health: full inside [max/2, max], falling off linearly outside
//
// The breakdown values are rounded to cents, the score to a whole number.
func Score(facts domain.MemberFacts, rs *domain.StateRuleSet, verdict domain.EligibilityVerdict) (domain.ReadinessScore, error) {
	if _, err := prepare(facts, rs); err != nil {
		return domain.ReadinessScore{}, err
	}

	age := ageComponent(facts.Age, rs.MinRetirementAge)
	service := serviceComponent(facts.TotalServiceYears, rs.MinServiceYears)
	contribution := contributionComponent(facts.ContributionRate, rs.MaxContributionRate)

	total := age.Add(service).Add(contribution)
	score := int(total.Round(0).IntPart())
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return domain.ReadinessScore{
		Score: score,
		ComponentBreakdown: map[string]decimal.Decimal{
			domain.ComponentAge:          round2(age),
			domain.ComponentService:      round2(service),
			domain.ComponentContribution: round2(contribution),
		},
		Eligible: verdict.Eligible,
	}, nil
}

func ageComponent(age, minRetirementAge int) decimal.Decimal {
	if age >= minRetirementAge {
		return ageWeight
	}
	floor := minRetirementAge - 10
	if age <= floor {
		return decimal.Zero
	}
	return ageWeight.Mul(decimal.NewFromInt(int64(age - floor))).Div(ageRampYears)
}

func serviceComponent(years, minServiceYears decimal.Decimal) decimal.Decimal {
	if !minServiceYears.IsPositive() || years.GreaterThanOrEqual(minServiceYears) {
		return serviceWeight
	}
	return serviceWeight.Mul(years).Div(minServiceYears)
}

func contributionComponent(rate, maxRate decimal.Decimal) decimal.Decimal {
	lower := maxRate.Mul(half)
	switch {
	case rate.LessThan(lower):
		return contributionWeight.Mul(rate).Div(lower)
	case rate.GreaterThan(maxRate):
		over := rate.Sub(maxRate).Div(lower)
		return decimal.Max(decimal.Zero, contributionWeight.Mul(one.Sub(over)))
	default:
		return contributionWeight
	}
}
