package domain

import (
	"time"
)

// Assessment is the complete pipeline result for one member snapshot.
type Assessment struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenantId"`
	MemberID    string      `json:"memberId,omitempty"`
	State       StateCode   `json:"state"`
	BenefitType BenefitType `json:"benefitType"`
	AsOf        time.Time   `json:"asOf"`
	Timestamp   time.Time   `json:"timestamp"`

	ServiceCredit ServiceCredit      `json:"serviceCredit"`
	Facts         MemberFacts        `json:"facts"`
	Verdict       EligibilityVerdict `json:"verdict"`
	Benefit       BenefitResult      `json:"benefit"`
	Readiness     ReadinessScore     `json:"readiness"`

	PolicyResults  []PolicyResult       `json:"policyResults,omitempty"`
	Compliance     *ComplianceReport    `json:"compliance,omitempty"`
	COLAProjection []COLAProjectionYear `json:"colaProjection,omitempty"`

	// Processing metadata
	Metadata AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID           string `json:"traceId"`
	EngineMs          int64  `json:"engineMs"`
	PolicyMs          int64  `json:"policyMs"`
	TotalMs           int64  `json:"totalMs"`
	PoliciesEvaluated int    `json:"policiesEvaluated"`
	RuleSetVersion    string `json:"ruleSetVersion,omitempty"`
	EngineVersion     string `json:"engineVersion"`
}

// Assessment status values for API responses.
const (
	StatusEligible   = "ELIGIBLE"
	StatusIneligible = "INELIGIBLE"
)

// AssessmentResponse is the condensed API view of an assessment.
type AssessmentResponse struct {
	AssessmentID string             `json:"assessmentId"`
	MemberID     string             `json:"memberId,omitempty"`
	TenantID     string             `json:"tenantId"`
	Status       string             `json:"status"`
	Reasons      []string           `json:"reasons,omitempty"`
	Benefit      BenefitResult      `json:"benefit"`
	Readiness    ReadinessScore     `json:"readiness"`
	Compliant    bool               `json:"compliant"`
	Metadata     AssessmentMetadata `json:"metadata"`
}

// ToResponse converts an Assessment to an API response.
func (a *Assessment) ToResponse() *AssessmentResponse {
	status := StatusEligible
	if !a.Verdict.Eligible {
		status = StatusIneligible
	}

	compliant := true
	if a.Compliance != nil {
		compliant = a.Compliance.Compliant
	}

	return &AssessmentResponse{
		AssessmentID: a.ID,
		MemberID:     a.MemberID,
		TenantID:     a.TenantID,
		Status:       status,
		Reasons:      a.Verdict.Reasons,
		Benefit:      a.Benefit,
		Readiness:    a.Readiness,
		Compliant:    compliant,
		Metadata:     a.Metadata,
	}
}

// ComplianceReport summarizes a member's standing against plan
// administration requirements.
type ComplianceReport struct {
	State                  StateCode `json:"state"`
	ContributionRateValid  bool      `json:"contributionRateValid"`
	Vested                 bool      `json:"vested"`
	AgeRequirementMet      bool      `json:"ageRequirementMet"`
	ServiceRequirementMet  bool      `json:"serviceRequirementMet"`
	RequiresMedicalExam    bool      `json:"requiresMedicalExam"`
	RequiresSpouseApproval bool      `json:"requiresSpouseApproval"`
	TaxExempt              bool      `json:"taxExempt"`
	NextReportDue          string    `json:"nextReportDue,omitempty"` // YYYY-MM-DD
	AuditRequired          bool      `json:"auditRequired"`
	Violations             []string  `json:"violations,omitempty"`
	Compliant              bool      `json:"compliant"`
}

// AuditRecord is an append-only log entry for a state-changing or
// decision-producing action.
type AuditRecord struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenantId"`
	Action     string            `json:"action"`
	EntityType string            `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Actor      string            `json:"actor,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Audit actions
const (
	AuditMemberCreated     = "member.created"
	AuditServiceAdded      = "service.added"
	AuditAssessmentCreated = "assessment.created"
	AuditRuleSetSaved      = "ruleset.saved"
	AuditRulesReloaded     = "rules.reloaded"
	AuditPolicySaved       = "policy.saved"
)
