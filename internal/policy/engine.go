// Package policy provides the CEL-Go based compliance policy engine.
package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/interpreter"
	"github.com/opensource-finance/pensionrules/internal/domain"
)

// costLimit bounds the work a single policy expression may do.
const costLimit = 100_000

// Engine compiles compliance policies to CEL programs and evaluates them
// against a member's facts. Loaded policies are an immutable set swapped on
// reload, so evaluation never waits on a reload.
type Engine struct {
	env     *cel.Env
	workers int

	mu     sync.Mutex // serializes writers
	loaded atomic.Pointer[policySet]
}

// policySet is sorted by policy ID.
type policySet []*compiledPolicy

type compiledPolicy struct {
	rule    *domain.PolicyRule
	program cel.Program
}

// NewEngine creates an engine evaluating up to workers policies at once.
func NewEngine(workers int) (*Engine, error) {
	if workers <= 0 {
		workers = 10
	}

	// Member facts plus the state's plan administration attributes
	env, err := cel.NewEnv(
		cel.Variable("age", cel.IntType),
		cel.Variable("service_years", cel.DoubleType),
		cel.Variable("final_average_salary", cel.DoubleType),
		cel.Variable("contribution_rate", cel.DoubleType),
		cel.Variable("benefit_type", cel.StringType),
		cel.Variable("state", cel.StringType),
		cel.Variable("min_contribution_rate", cel.DoubleType),
		cel.Variable("max_contribution_rate", cel.DoubleType),
		cel.Variable("vesting_years", cel.DoubleType),
		cel.Variable("min_service_years", cel.DoubleType),
		cel.Variable("min_retirement_age", cel.IntType),
		cel.Variable("requires_medical_exam", cel.BoolType),
		cel.Variable("medical_exam_on_file", cel.BoolType),
		cel.Variable("requires_spouse_approval", cel.BoolType),
		cel.Variable("spouse_approval_on_file", cel.BoolType),
		cel.Variable("eligible", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env, workers: workers}
	e.loaded.Store(&policySet{})
	return e, nil
}

// ValidateRule compiles a policy without loading it.
func (e *Engine) ValidateRule(rule *domain.PolicyRule) error {
	if rule == nil {
		return fmt.Errorf("policy rule is required")
	}
	_, err := e.compile(rule)
	return err
}

// LoadRule compiles a policy and adds it, replacing any policy with the same
// ID.
func (e *Engine) LoadRule(rule *domain.PolicyRule) error {
	compiled, err := e.compile(rule)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	next := make(policySet, 0, len(*e.loaded.Load())+1)
	for _, p := range *e.loaded.Load() {
		if p.rule.ID != rule.ID {
			next = append(next, p)
		}
	}
	e.store(append(next, compiled))
	return nil
}

// LoadRules adds every enabled policy, stopping at the first that fails to
// compile.
func (e *Engine) LoadRules(rules []*domain.PolicyRule) error {
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if err := e.LoadRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// ReloadRules replaces the loaded policies with the enabled ones in rules.
// If any fails to compile the previous set stays loaded.
func (e *Engine) ReloadRules(rules []*domain.PolicyRule) error {
	next := make(policySet, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compile(rule)
		if err != nil {
			return err
		}
		next = append(next, compiled)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.store(next)
	return nil
}

func (e *Engine) store(set policySet) {
	sort.Slice(set, func(i, j int) bool { return set[i].rule.ID < set[j].rule.ID })
	e.loaded.Store(&set)
}

// EvaluateInput holds the member snapshot for policy evaluation.
type EvaluateInput struct {
	TenantID string
	MemberID string
	Facts    domain.MemberFacts
	RuleSet  *domain.StateRuleSet
	Verdict  domain.EligibilityVerdict
	Context  domain.PolicyContext
}

// EvaluateAll evaluates every loaded policy that applies to the member's
// state. Policies run concurrently; results are ordered by policy ID.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.PolicyResult, error) {
	if input == nil || input.RuleSet == nil {
		return nil, domain.NewConfigurationError("", "", "policy evaluation requires a rule set")
	}

	var applicable policySet
	for _, p := range *e.loaded.Load() {
		if p.rule.State == "" || p.rule.State == input.RuleSet.State {
			applicable = append(applicable, p)
		}
	}
	if len(applicable) == 0 {
		return nil, nil
	}

	activation, err := interpreter.NewActivation(buildActivation(input))
	if err != nil {
		return nil, fmt.Errorf("failed to build policy activation: %w", err)
	}

	results := make([]domain.PolicyResult, len(applicable))
	next := make(chan int)
	var wg sync.WaitGroup
	for range min(e.workers, len(applicable)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				results[i] = applicable[i].evaluate(ctx, activation)
			}
		}()
	}
	for i := range applicable {
		next <- i
	}
	close(next)
	wg.Wait()

	return results, nil
}

func buildActivation(input *EvaluateInput) map[string]any {
	f := input.Facts
	rs := input.RuleSet

	minService := rs.MinServiceYears
	if f.BenefitType == domain.BenefitDisability && rs.DisabilityMinServiceYears != nil {
		minService = *rs.DisabilityMinServiceYears
	}

	return map[string]any{
		"age":                      int64(f.Age),
		"service_years":            f.TotalServiceYears.InexactFloat64(),
		"final_average_salary":     f.FinalAverageSalary.InexactFloat64(),
		"contribution_rate":        f.ContributionRate.InexactFloat64(),
		"benefit_type":             string(f.BenefitType),
		"state":                    string(rs.State),
		"min_contribution_rate":    rs.MinContributionRate.InexactFloat64(),
		"max_contribution_rate":    rs.MaxContributionRate.InexactFloat64(),
		"vesting_years":            rs.VestingYears.InexactFloat64(),
		"min_service_years":        minService.InexactFloat64(),
		"min_retirement_age":       int64(rs.MinRetirementAge),
		"requires_medical_exam":    rs.RequiresMedicalExam,
		"medical_exam_on_file":     input.Context.MedicalExamOnFile,
		"requires_spouse_approval": rs.RequiresSpouseApproval,
		"spouse_approval_on_file":  input.Context.SpouseApprovalOnFile,
		"eligible":                 input.Verdict.Eligible,
	}
}

func (p *compiledPolicy) evaluate(ctx context.Context, activation interpreter.Activation) domain.PolicyResult {
	start := time.Now()
	result := domain.PolicyResult{
		RuleID:   p.rule.ID,
		Severity: p.rule.Severity,
	}
	defer func() { result.ProcessMs = time.Since(start).Milliseconds() }()

	if err := ctx.Err(); err != nil {
		result.Outcome = domain.PolicyOutcomeError
		result.Reason = fmt.Sprintf("evaluation cancelled: %v", err)
		return result
	}

	out, _, err := p.program.ContextEval(ctx, activation)
	switch {
	case err != nil:
		result.Outcome = domain.PolicyOutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
	case out == types.True:
		result.Outcome = domain.PolicyOutcomeViolation
		result.Reason = p.rule.Reason
		if result.Reason == "" {
			result.Reason = p.rule.Name
		}
	default:
		result.Outcome = domain.PolicyOutcomePass
	}
	return result
}

// RulesCount returns the number of loaded policies.
func (e *Engine) RulesCount() int {
	return len(*e.loaded.Load())
}

// GetLoadedRules returns the loaded policies ordered by ID.
func (e *Engine) GetLoadedRules() []*domain.PolicyRule {
	set := *e.loaded.Load()
	rules := make([]*domain.PolicyRule, len(set))
	for i, p := range set {
		rules[i] = p.rule
	}
	return rules
}

// Close unloads every policy.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store(policySet{})
	return nil
}

// compile type-checks a policy expression, which must yield a bool.
func (e *Engine) compile(rule *domain.PolicyRule) (*compiledPolicy, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("policy rule id is required")
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", rule.ID, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("policy %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast,
		cel.CostLimit(costLimit),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", rule.ID, err)
	}
	return &compiledPolicy{rule: rule, program: program}, nil
}
