package domain

// PolicyRule is a compliance check expressed in CEL. An expression that
// evaluates to true is a violation.
type PolicyRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// State restricts the rule to one state. Empty applies to every state.
	State StateCode `json:"state,omitempty"`

	// CEL expression returning bool
	Expression string `json:"expression"`

	// Reason reported when the expression is true
	Reason string `json:"reason"`

	Severity string `json:"severity"`
	Enabled  bool   `json:"enabled"`
}

// Policy severities
const (
	SeverityCritical = "CRITICAL"
	SeverityWarning  = "WARNING"
)

// Policy outcomes
const (
	PolicyOutcomePass      = ".pass"
	PolicyOutcomeViolation = ".violation"
	PolicyOutcomeError     = ".err"
)

// PolicyResult is the output of one policy rule evaluation.
type PolicyResult struct {
	RuleID    string `json:"ruleId"`
	Outcome   string `json:"outcome"`
	Severity  string `json:"severity"`
	Reason    string `json:"reason,omitempty"`
	ProcessMs int64  `json:"processMs"`
}

// Violated reports whether the rule flagged the member.
func (r PolicyResult) Violated() bool {
	return r.Outcome == PolicyOutcomeViolation
}

// PolicyContext carries the documents on file that policies may inspect
// alongside the member facts.
type PolicyContext struct {
	MedicalExamOnFile    bool
	SpouseApprovalOnFile bool
}
