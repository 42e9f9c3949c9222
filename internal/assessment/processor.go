// Package assessment runs the full pension pipeline for one member snapshot:
// service credit, eligibility, benefit, readiness and compliance.
package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/policy"
	"github.com/opensource-finance/pensionrules/internal/rules"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EngineVersion is stamped on every assessment.
const EngineVersion = "pensionrules-1.0"

var tracer = otel.Tracer("pensionrules-assessment")

// Processor assembles member facts and runs every calculation against the
// loaded rule table.
type Processor struct {
	table    *rules.RuleTable
	policies *policy.Engine

	// COLAYears is the length of the cost-of-living projection. Zero disables it.
	COLAYears int
}

// NewProcessor creates a processor. policies may be nil to skip compliance checks.
func NewProcessor(table *rules.RuleTable, policies *policy.Engine, colaYears int) *Processor {
	return &Processor{
		table:     table,
		policies:  policies,
		COLAYears: colaYears,
	}
}

// Input contains everything needed to assess one member.
type Input struct {
	TenantID    string
	MemberID    string
	TraceID     string
	State       domain.StateCode
	BenefitType domain.BenefitType
	Age         int

	FinalAverageSalary decimal.Decimal
	ContributionRate   decimal.Decimal

	// ServiceHistory is resolved into credited years unless ServiceYears is set.
	ServiceHistory []domain.ServiceHistoryEntry
	ServiceYears   *decimal.Decimal

	Documents domain.PolicyContext
	AsOf      time.Time
	StartTime time.Time
}

// InputFromSnapshot builds an Input from a stored member and service history.
// The member's age is taken on the as-of date.
func InputFromSnapshot(tenantID string, snapshot *domain.MemberSnapshot, benefit domain.BenefitType, asOf time.Time) (*Input, error) {
	if snapshot == nil || snapshot.Member == nil {
		return nil, domain.NewValidationError("member", "member snapshot is required")
	}
	m := snapshot.Member
	if m.BirthDate.After(asOf) {
		return nil, domain.NewValidationError("birthDate", fmt.Sprintf("birth date %s is after as-of date %s",
			m.BirthDate.Format(time.DateOnly), asOf.Format(time.DateOnly)))
	}

	return &Input{
		TenantID:           tenantID,
		MemberID:           m.ID,
		State:              m.State,
		BenefitType:        benefit,
		Age:                m.AgeAt(asOf),
		FinalAverageSalary: m.FinalAverageSalary,
		ContributionRate:   m.ContributionRate,
		ServiceHistory:     snapshot.ServiceHistory,
		Documents: domain.PolicyContext{
			MedicalExamOnFile:    m.MedicalExamOnFile,
			SpouseApprovalOnFile: m.SpouseApprovalOnFile,
		},
		AsOf:      asOf,
		StartTime: time.Now(),
	}, nil
}

// Process runs the pipeline. Validation and configuration errors from any
// stage are returned unchanged; an ineligible member is a normal result.
func (p *Processor) Process(ctx context.Context, input *Input) (*domain.Assessment, error) {
	ctx, span := tracer.Start(ctx, "assessment.Process",
		trace.WithAttributes(
			attribute.String("tenant.id", input.TenantID),
			attribute.String("member.state", string(input.State)),
			attribute.String("benefit.type", string(input.BenefitType)),
		),
	)
	defer span.End()

	assessment, err := p.process(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("assessment.id", assessment.ID),
		attribute.Bool("assessment.eligible", assessment.Verdict.Eligible),
	)
	return assessment, nil
}

func (p *Processor) process(ctx context.Context, input *Input) (*domain.Assessment, error) {
	if input.StartTime.IsZero() {
		input.StartTime = time.Now()
	}
	if input.AsOf.IsZero() {
		return nil, domain.NewValidationError("asOf", "as-of date is required")
	}
	if input.TraceID == "" {
		input.TraceID = uuid.New().String()
	}

	bt, err := domain.ParseBenefitType(string(input.BenefitType))
	if err != nil {
		return nil, err
	}

	rs, err := p.table.Lookup(input.State)
	if err != nil {
		return nil, err
	}

	engineStart := time.Now()

	credit, err := p.resolveCredit(input, rs)
	if err != nil {
		return nil, err
	}

	facts := domain.MemberFacts{
		Age:                input.Age,
		TotalServiceYears:  credit.TotalYears,
		FinalAverageSalary: input.FinalAverageSalary,
		ContributionRate:   input.ContributionRate,
		State:              rs.State,
		BenefitType:        bt,
	}

	_, engineSpan := tracer.Start(ctx, "assessment.Engine")
	verdict, err := rules.Validate(facts, rs)
	if err != nil {
		engineSpan.End()
		return nil, err
	}
	benefit, err := rules.Calculate(facts, rs)
	if err != nil {
		engineSpan.End()
		return nil, err
	}
	readiness, err := rules.Score(facts, rs, verdict)
	if err != nil {
		engineSpan.End()
		return nil, err
	}
	engineSpan.End()
	engineMs := time.Since(engineStart).Milliseconds()

	policyStart := time.Now()
	var policyResults []domain.PolicyResult
	if p.policies != nil {
		policyCtx, policySpan := tracer.Start(ctx, "assessment.Policies")
		policyResults, err = p.policies.EvaluateAll(policyCtx, &policy.EvaluateInput{
			TenantID: input.TenantID,
			MemberID: input.MemberID,
			Facts:    facts,
			RuleSet:  rs,
			Verdict:  verdict,
			Context:  input.Documents,
		})
		policySpan.End()
		if err != nil {
			return nil, err
		}
	}

	compliance, err := policy.BuildReport(facts, rs, verdict, policyResults, input.AsOf)
	if err != nil {
		return nil, err
	}
	policyMs := time.Since(policyStart).Milliseconds()

	var projection []domain.COLAProjectionYear
	if p.COLAYears > 0 {
		projection, err = rules.ProjectCOLA(benefit, rs, p.COLAYears)
		if err != nil {
			return nil, err
		}
	}

	return &domain.Assessment{
		ID:             uuid.New().String(),
		TenantID:       input.TenantID,
		MemberID:       input.MemberID,
		State:          rs.State,
		BenefitType:    bt,
		AsOf:           input.AsOf.UTC(),
		Timestamp:      time.Now().UTC(),
		ServiceCredit:  credit,
		Facts:          facts,
		Verdict:        verdict,
		Benefit:        benefit,
		Readiness:      readiness,
		PolicyResults:  policyResults,
		Compliance:     compliance,
		COLAProjection: projection,
		Metadata: domain.AssessmentMetadata{
			TraceID:           input.TraceID,
			EngineMs:          engineMs,
			PolicyMs:          policyMs,
			TotalMs:           time.Since(input.StartTime).Milliseconds(),
			PoliciesEvaluated: len(policyResults),
			RuleSetVersion:    p.table.Version(),
			EngineVersion:     EngineVersion,
		},
	}, nil
}

func (p *Processor) resolveCredit(input *Input, rs *domain.StateRuleSet) (domain.ServiceCredit, error) {
	if input.ServiceYears != nil {
		years := *input.ServiceYears
		if years.IsNegative() {
			return domain.ServiceCredit{}, domain.NewValidationError("totalServiceYears", fmt.Sprintf("must not be negative, got %s", years))
		}
		return domain.ServiceCredit{EarnedYears: years, TotalYears: years}, nil
	}
	return rules.ResolveServiceCreditDetail(input.ServiceHistory, input.AsOf, rs.MaxPurchasedServiceYears)
}

// IsIneligible reports whether the member failed any eligibility check.
func IsIneligible(a *domain.Assessment) bool {
	return !a.Verdict.Eligible
}

// GetReasons returns the eligibility reasons followed by the reasons of any
// violated compliance policy.
func GetReasons(a *domain.Assessment) []string {
	reasons := make([]string, 0, len(a.Verdict.Reasons))
	reasons = append(reasons, a.Verdict.Reasons...)
	for _, r := range a.PolicyResults {
		if r.Violated() && r.Reason != "" {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}
