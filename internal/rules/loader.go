package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed states.yaml
var defaultRulesYAML []byte

// RuleFile is a parsed rule data file.
type RuleFile struct {
	Version  string
	RuleSets []*domain.StateRuleSet
	Policies []*domain.PolicyRule
}

// ruleFileYAML mirrors the on-disk layout. Decimal fields are read as text
// so values like 0.025 are kept exactly as written.
type ruleFileYAML struct {
	Version  string        `yaml:"version"`
	States   []ruleSetYAML `yaml:"states"`
	Policies []policyYAML  `yaml:"policies"`
}

type ruleSetYAML struct {
	State                         string  `yaml:"state"`
	Name                          string  `yaml:"name"`
	Multiplier                    string  `yaml:"multiplier"`
	MinRetirementAge              int     `yaml:"min_retirement_age"`
	EarlyRetirementAge            int     `yaml:"early_retirement_age"`
	MinServiceYears               string  `yaml:"min_service_years"`
	VestingYears                  string  `yaml:"vesting_years"`
	MinContributionRate           string  `yaml:"min_contribution_rate"`
	MaxContributionRate           string  `yaml:"max_contribution_rate"`
	EarlyRetirementPenaltyPerYear string  `yaml:"early_retirement_penalty_per_year"`
	FinalAverageSalaryPeriodYears int     `yaml:"final_average_salary_period_years"`
	AnyAgeWithService             bool    `yaml:"any_age_with_service"`
	MaxPurchasedServiceYears      string  `yaml:"max_purchased_service_years"`
	DisabilityMultiplier          *string `yaml:"disability_multiplier"`
	DisabilityMinServiceYears     *string `yaml:"disability_min_service_years"`
	EmployerContributionRate      string  `yaml:"employer_contribution_rate"`
	COLARate                      string  `yaml:"cola_rate"`
	RequiresSpouseApproval        bool    `yaml:"requires_spouse_approval"`
	RequiresMedicalExam           bool    `yaml:"requires_medical_exam"`
	TaxExempt                     bool    `yaml:"tax_exempt"`
	ReportDueDate                 string  `yaml:"report_due_date"`
	AuditFrequencyYears           int     `yaml:"audit_frequency_years"`
}

type policyYAML struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	State       string `yaml:"state"`
	Expression  string `yaml:"expression"`
	Reason      string `yaml:"reason"`
	Severity    string `yaml:"severity"`
	Enabled     bool   `yaml:"enabled"`
}

// DefaultRuleFile parses the embedded CA/IN/OH rule data.
func DefaultRuleFile() (*RuleFile, error) {
	return ParseRuleFile(defaultRulesYAML)
}

// LoadRuleFile reads and parses a YAML rule data file.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return ParseRuleFile(data)
}

// ParseRuleFile parses YAML rule data and validates every rule set.
func ParseRuleFile(data []byte) (*RuleFile, error) {
	var raw ruleFileYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewConfigurationError("", "", fmt.Sprintf("invalid rule file: %v", err))
	}
	if len(raw.States) == 0 {
		return nil, domain.NewConfigurationError("", "states", "rule file defines no states")
	}

	file := &RuleFile{
		Version:  raw.Version,
		RuleSets: make([]*domain.StateRuleSet, 0, len(raw.States)),
		Policies: make([]*domain.PolicyRule, 0, len(raw.Policies)),
	}

	for _, r := range raw.States {
		rs, err := r.toRuleSet()
		if err != nil {
			return nil, err
		}
		if err := rs.Validate(); err != nil {
			return nil, err
		}
		file.RuleSets = append(file.RuleSets, rs)
	}

	for _, p := range raw.Policies {
		severity := strings.ToUpper(p.Severity)
		if severity == "" {
			severity = domain.SeverityWarning
		}
		file.Policies = append(file.Policies, &domain.PolicyRule{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			State:       domain.StateCode(strings.ToUpper(p.State)),
			Expression:  p.Expression,
			Reason:      p.Reason,
			Severity:    severity,
			Enabled:     p.Enabled,
		})
	}

	return file, nil
}

func (r ruleSetYAML) toRuleSet() (*domain.StateRuleSet, error) {
	state := domain.StateCode(strings.ToUpper(strings.TrimSpace(r.State)))
	if state == "" {
		return nil, domain.NewConfigurationError("", "state", "state code is required")
	}

	p := decimalParser{state: state}
	rs := &domain.StateRuleSet{
		State:                         state,
		Name:                          r.Name,
		Multiplier:                    p.required("multiplier", r.Multiplier),
		MinRetirementAge:              r.MinRetirementAge,
		EarlyRetirementAge:            r.EarlyRetirementAge,
		MinServiceYears:               p.required("min_service_years", r.MinServiceYears),
		VestingYears:                  p.required("vesting_years", r.VestingYears),
		MinContributionRate:           p.optional("min_contribution_rate", r.MinContributionRate),
		MaxContributionRate:           p.required("max_contribution_rate", r.MaxContributionRate),
		EarlyRetirementPenaltyPerYear: p.required("early_retirement_penalty_per_year", r.EarlyRetirementPenaltyPerYear),
		FinalAverageSalaryPeriodYears: r.FinalAverageSalaryPeriodYears,
		AnyAgeWithService:             r.AnyAgeWithService,
		MaxPurchasedServiceYears:      p.optional("max_purchased_service_years", r.MaxPurchasedServiceYears),
		DisabilityMultiplier:          p.pointer("disability_multiplier", r.DisabilityMultiplier),
		DisabilityMinServiceYears:     p.pointer("disability_min_service_years", r.DisabilityMinServiceYears),
		EmployerContributionRate:      p.optional("employer_contribution_rate", r.EmployerContributionRate),
		COLARate:                      p.optional("cola_rate", r.COLARate),
		RequiresSpouseApproval:        r.RequiresSpouseApproval,
		RequiresMedicalExam:           r.RequiresMedicalExam,
		TaxExempt:                     r.TaxExempt,
		ReportDueDate:                 r.ReportDueDate,
		AuditFrequencyYears:           r.AuditFrequencyYears,
	}
	if p.err != nil {
		return nil, p.err
	}
	return rs, nil
}

// decimalParser converts text fields, keeping the first error.
type decimalParser struct {
	state domain.StateCode
	err   error
}

func (p *decimalParser) parse(field, raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil && p.err == nil {
		p.err = domain.NewConfigurationError(p.state, field, fmt.Sprintf("invalid decimal %q", raw))
	}
	return d
}

func (p *decimalParser) required(field, raw string) decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		if p.err == nil {
			p.err = domain.NewConfigurationError(p.state, field, "is required")
		}
		return decimal.Zero
	}
	return p.parse(field, raw)
}

func (p *decimalParser) optional(field, raw string) decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero
	}
	return p.parse(field, raw)
}

// pointer keeps a missing value as nil so rule set validation can report it.
func (p *decimalParser) pointer(field string, raw *string) *decimal.Decimal {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	d := p.parse(field, *raw)
	return &d
}
