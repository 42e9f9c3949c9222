package policy

import (
	"fmt"
	"time"

	"github.com/opensource-finance/pensionrules/internal/domain"
)

// BuildReport summarizes a member's standing against the state's plan
// administration requirements. A member is compliant when the contribution
// rate is inside the state's band and no critical policy was violated or
// failed to evaluate.
func BuildReport(facts domain.MemberFacts, rs *domain.StateRuleSet, verdict domain.EligibilityVerdict, results []domain.PolicyResult, asOf time.Time) (*domain.ComplianceReport, error) {
	if rs == nil {
		return nil, domain.NewConfigurationError(facts.State, "", "no rule set loaded")
	}

	rate := facts.ContributionRate
	report := &domain.ComplianceReport{
		State:                  rs.State,
		ContributionRateValid:  rate.GreaterThanOrEqual(rs.MinContributionRate) && rate.LessThanOrEqual(rs.MaxContributionRate),
		Vested:                 facts.TotalServiceYears.GreaterThanOrEqual(rs.VestingYears),
		AgeRequirementMet:      !failed(verdict, domain.CheckAge),
		ServiceRequirementMet:  !failed(verdict, domain.CheckServiceMin),
		RequiresMedicalExam:    rs.RequiresMedicalExam,
		RequiresSpouseApproval: rs.RequiresSpouseApproval,
		TaxExempt:              rs.TaxExempt,
		AuditRequired:          rs.AuditFrequencyYears > 0 && asOf.Year()%rs.AuditFrequencyYears == 0,
		Violations:             []string{},
	}

	if rs.ReportDueDate != "" {
		due, err := NextReportDue(rs.ReportDueDate, asOf)
		if err != nil {
			return nil, domain.NewConfigurationError(rs.State, "reportDueDate", err.Error())
		}
		report.NextReportDue = due.Format(time.DateOnly)
	}

	critical := false
	for _, r := range results {
		switch r.Outcome {
		case domain.PolicyOutcomeViolation:
			report.Violations = append(report.Violations, r.Reason)
			if r.Severity == domain.SeverityCritical {
				critical = true
			}
		case domain.PolicyOutcomeError:
			report.Violations = append(report.Violations, fmt.Sprintf("policy %s could not be evaluated", r.RuleID))
			critical = true
		}
	}

	report.Compliant = report.ContributionRateValid && !critical
	return report, nil
}

// NextReportDue returns the first occurrence of the MM-DD due date on or
// after asOf.
func NextReportDue(monthDay string, asOf time.Time) (time.Time, error) {
	md, err := time.Parse("01-02", monthDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q: must be MM-DD", monthDay)
	}

	y, m, d := asOf.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	due := time.Date(y, md.Month(), md.Day(), 0, 0, 0, 0, time.UTC)
	if due.Before(today) {
		due = time.Date(y+1, md.Month(), md.Day(), 0, 0, 0, 0, time.UTC)
	}
	return due, nil
}

func failed(verdict domain.EligibilityVerdict, check string) bool {
	for _, c := range verdict.FailedChecks {
		if c == check {
			return true
		}
	}
	return false
}
