package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StateRuleSet is the immutable retirement configuration for one state.
// It is validated once when loaded and never mutated afterwards.
type StateRuleSet struct {
	State StateCode `json:"state"`
	Name  string    `json:"name"`

	Multiplier                    decimal.Decimal `json:"multiplier"`
	MinRetirementAge              int             `json:"minRetirementAge"`
	EarlyRetirementAge            int             `json:"earlyRetirementAge"`
	MinServiceYears               decimal.Decimal `json:"minServiceYears"`
	VestingYears                  decimal.Decimal `json:"vestingYears"`
	MinContributionRate           decimal.Decimal `json:"minContributionRate"`
	MaxContributionRate           decimal.Decimal `json:"maxContributionRate"`
	EarlyRetirementPenaltyPerYear decimal.Decimal `json:"earlyRetirementPenaltyPerYear"`
	FinalAverageSalaryPeriodYears int             `json:"finalAverageSalaryPeriodYears"`
	AnyAgeWithService             bool            `json:"anyAgeWithService"`
	MaxPurchasedServiceYears      decimal.Decimal `json:"maxPurchasedServiceYears"`

	// Disability coefficients are required. A nil value is a configuration error.
	DisabilityMultiplier      *decimal.Decimal `json:"disabilityMultiplier"`
	DisabilityMinServiceYears *decimal.Decimal `json:"disabilityMinServiceYears"`

	// Plan administration attributes used by compliance reporting.
	EmployerContributionRate decimal.Decimal `json:"employerContributionRate"`
	COLARate                 decimal.Decimal `json:"colaRate"`
	RequiresSpouseApproval   bool            `json:"requiresSpouseApproval"`
	RequiresMedicalExam      bool            `json:"requiresMedicalExam"`
	TaxExempt                bool            `json:"taxExempt"`
	ReportDueDate            string          `json:"reportDueDate"` // MM-DD
	AuditFrequencyYears      int             `json:"auditFrequencyYears"`
}

// Validate checks the rule set invariants.
func (r *StateRuleSet) Validate() error {
	if r.State == "" {
		return NewConfigurationError("", "state", "state code is required")
	}

	fail := func(field, format string, args ...any) error {
		return NewConfigurationError(r.State, field, fmt.Sprintf(format, args...))
	}

	one := decimal.NewFromInt(1)

	if !r.Multiplier.IsPositive() || r.Multiplier.GreaterThanOrEqual(one) {
		return fail("multiplier", "must be between 0 and 1 exclusive, got %s", r.Multiplier)
	}
	if r.MinRetirementAge <= 0 {
		return fail("minRetirementAge", "must be positive, got %d", r.MinRetirementAge)
	}
	if r.EarlyRetirementAge <= 0 || r.EarlyRetirementAge > r.MinRetirementAge {
		return fail("earlyRetirementAge", "must be positive and not above minRetirementAge %d, got %d", r.MinRetirementAge, r.EarlyRetirementAge)
	}
	if r.MinServiceYears.IsNegative() {
		return fail("minServiceYears", "must not be negative, got %s", r.MinServiceYears)
	}
	if r.VestingYears.IsNegative() {
		return fail("vestingYears", "must not be negative, got %s", r.VestingYears)
	}
	if r.VestingYears.GreaterThan(r.MinServiceYears) {
		return fail("vestingYears", "%s exceeds minServiceYears %s", r.VestingYears, r.MinServiceYears)
	}
	if !r.MaxContributionRate.IsPositive() {
		return fail("maxContributionRate", "must be positive, got %s", r.MaxContributionRate)
	}
	if r.MinContributionRate.IsNegative() || r.MinContributionRate.GreaterThan(r.MaxContributionRate) {
		return fail("minContributionRate", "must be between 0 and maxContributionRate %s, got %s", r.MaxContributionRate, r.MinContributionRate)
	}
	if r.EarlyRetirementPenaltyPerYear.IsNegative() {
		return fail("earlyRetirementPenaltyPerYear", "must not be negative, got %s", r.EarlyRetirementPenaltyPerYear)
	}
	if r.FinalAverageSalaryPeriodYears <= 0 {
		return fail("finalAverageSalaryPeriodYears", "must be positive, got %d", r.FinalAverageSalaryPeriodYears)
	}
	if r.MaxPurchasedServiceYears.IsNegative() {
		return fail("maxPurchasedServiceYears", "must not be negative, got %s", r.MaxPurchasedServiceYears)
	}

	if r.DisabilityMultiplier == nil {
		return fail("disabilityMultiplier", "is required")
	}
	if !r.DisabilityMultiplier.IsPositive() || r.DisabilityMultiplier.GreaterThanOrEqual(one) {
		return fail("disabilityMultiplier", "must be between 0 and 1 exclusive, got %s", *r.DisabilityMultiplier)
	}
	if r.DisabilityMinServiceYears == nil {
		return fail("disabilityMinServiceYears", "is required")
	}
	if r.DisabilityMinServiceYears.IsNegative() {
		return fail("disabilityMinServiceYears", "must not be negative, got %s", *r.DisabilityMinServiceYears)
	}

	if r.COLARate.IsNegative() {
		return fail("colaRate", "must not be negative, got %s", r.COLARate)
	}
	if r.EmployerContributionRate.IsNegative() {
		return fail("employerContributionRate", "must not be negative, got %s", r.EmployerContributionRate)
	}
	if r.ReportDueDate != "" {
		if _, err := time.Parse("01-02", r.ReportDueDate); err != nil {
			return fail("reportDueDate", "must be MM-DD, got %q", r.ReportDueDate)
		}
	}
	if r.AuditFrequencyYears < 0 {
		return fail("auditFrequencyYears", "must not be negative, got %d", r.AuditFrequencyYears)
	}

	return nil
}

// BenefitRule holds the coefficients for one (state, benefit type) pair.
type BenefitRule struct {
	State             StateCode       `json:"state"`
	BenefitType       BenefitType     `json:"benefitType"`
	Multiplier        decimal.Decimal `json:"multiplier"`
	MinServiceYears   decimal.Decimal `json:"minServiceYears"`
	MinAge            int             `json:"minAge"`            // 0 means no age requirement
	AnyAgeWithService bool            `json:"anyAgeWithService"` // age waived once MinServiceYears is met
	ReduceBelowAge    int             `json:"reduceBelowAge"`    // 0 means no early reduction
	PenaltyPerYear    decimal.Decimal `json:"penaltyPerYear"`
}

// RuleSetRecord is a persisted rule set with its source metadata.
type RuleSetRecord struct {
	RuleSet   *StateRuleSet `json:"ruleSet"`
	Version   string        `json:"version"`
	UpdatedAt time.Time     `json:"updatedAt"`
}
