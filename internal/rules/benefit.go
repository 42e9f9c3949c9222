package rules

import (
	"fmt"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/shopspring/decimal"
)

// Calculate computes the benefit for a member snapshot.
//
// Eligibility is not a hard gate: an ineligible member still receives a
// result, flagged Advisory and carrying the validator's reasons, so callers
// can offer what-if previews.
//
// The annual amount is rounded to cents before the monthly amount is derived
// from it.
func Calculate(facts domain.MemberFacts, rs *domain.StateRuleSet) (domain.BenefitResult, error) {
	if rs == nil {
		return domain.BenefitResult{}, domain.NewConfigurationError(facts.State, "", "no rule set loaded")
	}
	if !facts.FinalAverageSalary.IsPositive() {
		return domain.BenefitResult{}, domain.NewValidationError("finalAverageSalary", fmt.Sprintf("must be positive, got %s", facts.FinalAverageSalary))
	}
	if facts.TotalServiceYears.IsNegative() {
		return domain.BenefitResult{}, domain.NewValidationError("totalServiceYears", fmt.Sprintf("must not be negative, got %s", facts.TotalServiceYears))
	}

	verdict, err := Validate(facts, rs)
	if err != nil {
		return domain.BenefitResult{}, err
	}
	strategy, err := StrategyFor(rs, facts.BenefitType)
	if err != nil {
		return domain.BenefitResult{}, err
	}

	base := facts.FinalAverageSalary.Mul(facts.TotalServiceYears).Mul(strategy.Multiplier)
	reduction := EarlyReduction(facts.Age, strategy)
	annual := round2(base.Mul(one.Sub(reduction)))
	monthly := round2(annual.Div(twelve))

	result := domain.BenefitResult{
		State:             rs.State,
		BenefitType:       strategy.BenefitType,
		BaseAnnualAmount:  round2(base),
		AnnualAmount:      annual,
		MonthlyAmount:     monthly,
		MultiplierApplied: strategy.Multiplier,
		ReductionApplied:  reduction,
		CalculationBasis:  rs.FinalAverageSalaryPeriodYears,
	}
	if !verdict.Eligible {
		result.Advisory = true
		result.AdvisoryReasons = verdict.Reasons
	}

	return result, nil
}

// EarlyReduction returns the fraction removed from the base benefit for
// retiring before the strategy's reduction age, clamped to [0, 1].
func EarlyReduction(age int, strategy domain.BenefitRule) decimal.Decimal {
	if strategy.ReduceBelowAge == 0 || age >= strategy.ReduceBelowAge {
		return decimal.Zero
	}
	years := decimal.NewFromInt(int64(strategy.ReduceBelowAge - age))
	return clamp(years.Mul(strategy.PenaltyPerYear), decimal.Zero, one)
}
