package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StateCode identifies the state whose retirement rules apply.
// Any code with a loaded StateRuleSet is valid.
type StateCode string

// Built-in states shipped with the default rule data.
const (
	StateCA StateCode = "CA"
	StateIN StateCode = "IN"
	StateOH StateCode = "OH"
)

// ParseStateCode normalizes a user-supplied state code.
func ParseStateCode(s string) (StateCode, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != 2 {
		return "", NewValidationError("state", fmt.Sprintf("invalid state code %q", s))
	}
	return StateCode(code), nil
}

// BenefitType selects which eligibility and calculation strategy applies.
type BenefitType string

const (
	BenefitService    BenefitType = "service"
	BenefitDisability BenefitType = "disability"
	BenefitEarly      BenefitType = "early"
)

// BenefitTypes lists every supported benefit type in a stable order.
var BenefitTypes = []BenefitType{BenefitService, BenefitDisability, BenefitEarly}

// ParseBenefitType validates a benefit type string.
func ParseBenefitType(s string) (BenefitType, error) {
	bt := BenefitType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range BenefitTypes {
		if bt == known {
			return bt, nil
		}
	}
	return "", NewValidationError("benefitType", fmt.Sprintf("unknown benefit type %q", s))
}

// ServiceHistoryEntry records a contiguous period of credited service.
// A nil EndDate means the member is still employed in this period.
type ServiceHistoryEntry struct {
	ID            string          `json:"id,omitempty"`
	StartDate     time.Time       `json:"startDate"`
	EndDate       *time.Time      `json:"endDate,omitempty"`
	CreditedYears decimal.Decimal `json:"creditedYears"`
	Purchased     bool            `json:"purchased"`
}

// IsOpen reports whether the entry has no end date.
func (e ServiceHistoryEntry) IsOpen() bool {
	return e.EndDate == nil
}

// MemberFacts is the snapshot the engine evaluates. It is built fresh for
// every calculation and never shared.
type MemberFacts struct {
	Age                int             `json:"age"`
	TotalServiceYears  decimal.Decimal `json:"totalServiceYears"`
	FinalAverageSalary decimal.Decimal `json:"finalAverageSalary"`
	ContributionRate   decimal.Decimal `json:"contributionRate"`
	State              StateCode       `json:"state"`
	BenefitType        BenefitType     `json:"benefitType"`
}

// Eligibility check names, in evaluation order.
const (
	CheckAge          = "age"
	CheckVesting      = "vesting"
	CheckServiceMin   = "service_minimum"
	CheckContribution = "contribution_rate"
)

// EligibilityVerdict is the outcome of validating member facts against a rule set.
// Reasons and FailedChecks are parallel and follow the fixed check order.
type EligibilityVerdict struct {
	Eligible     bool     `json:"eligible"`
	Reasons      []string `json:"reasons"`
	FailedChecks []string `json:"failedChecks"`
}

// Fail records a failing check.
func (v *EligibilityVerdict) Fail(check, reason string) {
	v.FailedChecks = append(v.FailedChecks, check)
	v.Reasons = append(v.Reasons, reason)
}

// BenefitResult is the computed benefit for one member snapshot.
type BenefitResult struct {
	State             StateCode       `json:"state"`
	BenefitType       BenefitType     `json:"benefitType"`
	BaseAnnualAmount  decimal.Decimal `json:"baseAnnualAmount"`
	AnnualAmount      decimal.Decimal `json:"annualAmount"`
	MonthlyAmount     decimal.Decimal `json:"monthlyAmount"`
	MultiplierApplied decimal.Decimal `json:"multiplierApplied"`
	ReductionApplied  decimal.Decimal `json:"reductionApplied"`
	CalculationBasis  int             `json:"calculationBasis"` // final average salary period, in years

	// Advisory is set when the member is not eligible; the amounts are a what-if preview.
	Advisory        bool     `json:"advisory"`
	AdvisoryReasons []string `json:"advisoryReasons,omitempty"`
}

// Readiness score components.
const (
	ComponentAge          = "age_proximity"
	ComponentService      = "service_proximity"
	ComponentContribution = "contribution_health"
)

// ReadinessScore is the advisory 0-100 readiness metric.
type ReadinessScore struct {
	Score              int                        `json:"score"`
	ComponentBreakdown map[string]decimal.Decimal `json:"componentBreakdown"`
	Eligible           bool                       `json:"eligible"`
}

// ServiceCredit is the breakdown produced by the service credit resolver.
type ServiceCredit struct {
	EarnedYears            decimal.Decimal `json:"earnedYears"`
	PurchasedYears         decimal.Decimal `json:"purchasedYears"`
	PurchasedYearsCredited decimal.Decimal `json:"purchasedYearsCredited"`
	TotalYears             decimal.Decimal `json:"totalYears"`
}

// COLAProjectionYear is one year of a cost-of-living projection.
type COLAProjectionYear struct {
	Year          int             `json:"year"`
	AnnualAmount  decimal.Decimal `json:"annualAmount"`
	MonthlyAmount decimal.Decimal `json:"monthlyAmount"`
}
