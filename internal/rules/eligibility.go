package rules

import (
	"fmt"

	"github.com/opensource-finance/pensionrules/internal/domain"
)

// Validate evaluates every eligibility check for the member and collects the
// reason for each one that fails. Checks never short-circuit and reasons are
// always reported in the same order: age, vesting, service minimum,
// contribution rate.
//
// An ineligible member is a normal verdict. Errors are returned only for
// invalid input or a missing rule set.
func Validate(facts domain.MemberFacts, rs *domain.StateRuleSet) (domain.EligibilityVerdict, error) {
	strategy, err := prepare(facts, rs)
	if err != nil {
		return domain.EligibilityVerdict{}, err
	}

	verdict := domain.EligibilityVerdict{
		Reasons:      []string{},
		FailedChecks: []string{},
	}
	service := facts.TotalServiceYears

	if !ageSatisfied(facts, strategy) {
		verdict.Fail(domain.CheckAge, fmt.Sprintf(
			"age %d is below the minimum %s retirement age of %d",
			facts.Age, strategy.BenefitType, strategy.MinAge,
		))
	}

	if service.LessThan(rs.VestingYears) {
		verdict.Fail(domain.CheckVesting, fmt.Sprintf(
			"service credit of %s years does not meet the %s-year vesting requirement",
			service.StringFixed(roundPlaces), rs.VestingYears,
		))
	}

	if service.LessThan(strategy.MinServiceYears) {
		verdict.Fail(domain.CheckServiceMin, fmt.Sprintf(
			"%s benefits require %s years of service, member has %s",
			strategy.BenefitType, strategy.MinServiceYears, service.StringFixed(roundPlaces),
		))
	}

	if facts.ContributionRate.GreaterThan(rs.MaxContributionRate) {
		verdict.Fail(domain.CheckContribution, fmt.Sprintf(
			"contribution rate %s exceeds the %s maximum of %s",
			facts.ContributionRate, rs.State, rs.MaxContributionRate,
		))
	}

	verdict.Eligible = len(verdict.Reasons) == 0
	return verdict, nil
}

func ageSatisfied(facts domain.MemberFacts, strategy domain.BenefitRule) bool {
	if strategy.MinAge == 0 || facts.Age >= strategy.MinAge {
		return true
	}
	return strategy.AnyAgeWithService && facts.TotalServiceYears.GreaterThanOrEqual(strategy.MinServiceYears)
}

// prepare rejects malformed facts and resolves the benefit strategy.
func prepare(facts domain.MemberFacts, rs *domain.StateRuleSet) (domain.BenefitRule, error) {
	if rs == nil {
		return domain.BenefitRule{}, domain.NewConfigurationError(facts.State, "", "no rule set loaded")
	}
	if facts.State != "" && facts.State != rs.State {
		return domain.BenefitRule{}, domain.NewValidationError("state", fmt.Sprintf(
			"facts for %s cannot be evaluated against the %s rule set", facts.State, rs.State,
		))
	}
	if facts.Age < 0 {
		return domain.BenefitRule{}, domain.NewValidationError("age", fmt.Sprintf("must not be negative, got %d", facts.Age))
	}
	if facts.TotalServiceYears.IsNegative() {
		return domain.BenefitRule{}, domain.NewValidationError("totalServiceYears", fmt.Sprintf("must not be negative, got %s", facts.TotalServiceYears))
	}
	if facts.ContributionRate.IsNegative() {
		return domain.BenefitRule{}, domain.NewValidationError("contributionRate", fmt.Sprintf("must not be negative, got %s", facts.ContributionRate))
	}
	return StrategyFor(rs, facts.BenefitType)
}
