// Package rules implements the pension eligibility and benefit engine.
//
// Every calculation in this package is a pure function over a
// domain.MemberFacts snapshot and an immutable domain.StateRuleSet. The only
// shared state is the RuleTable, which is read-only between reloads.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/opensource-finance/pensionrules/internal/domain"
)

// RuleTable is the process-wide table of state rule sets and the
// (state, benefit type) strategy coefficients derived from them.
type RuleTable struct {
	mu         sync.RWMutex
	ruleSets   map[domain.StateCode]*domain.StateRuleSet
	strategies map[strategyKey]domain.BenefitRule
	version    string
}

type strategyKey struct {
	state   domain.StateCode
	benefit domain.BenefitType
}

// NewRuleTable validates and loads the given rule sets.
func NewRuleTable(sets []*domain.StateRuleSet, version string) (*RuleTable, error) {
	t := &RuleTable{}
	if err := t.Reload(sets, version); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload validates every rule set and replaces the whole table at once.
// On error the previous table stays in place.
func (t *RuleTable) Reload(sets []*domain.StateRuleSet, version string) error {
	ruleSets := make(map[domain.StateCode]*domain.StateRuleSet, len(sets))
	strategies := make(map[strategyKey]domain.BenefitRule, len(sets)*len(strategyBuilders))

	for _, rs := range sets {
		if rs == nil {
			continue
		}
		if err := rs.Validate(); err != nil {
			return err
		}
		if _, dup := ruleSets[rs.State]; dup {
			return domain.NewConfigurationError(rs.State, "", "duplicate rule set")
		}
		ruleSets[rs.State] = rs

		for bt := range strategyBuilders {
			strategy, err := StrategyFor(rs, bt)
			if err != nil {
				return err
			}
			strategies[strategyKey{state: rs.State, benefit: bt}] = strategy
		}
	}

	t.mu.Lock()
	t.ruleSets = ruleSets
	t.strategies = strategies
	t.version = version
	t.mu.Unlock()

	return nil
}

// Lookup returns the rule set for a state. The returned value must not be modified.
func (t *RuleTable) Lookup(state domain.StateCode) (*domain.StateRuleSet, error) {
	t.mu.RLock()
	rs, ok := t.ruleSets[state]
	t.mu.RUnlock()

	if !ok {
		return nil, domain.NewConfigurationError(state, "", "no rule set loaded")
	}
	return rs, nil
}

// Strategy returns the coefficients for a (state, benefit type) pair.
func (t *RuleTable) Strategy(state domain.StateCode, benefit domain.BenefitType) (domain.BenefitRule, error) {
	t.mu.RLock()
	_, known := t.ruleSets[state]
	strategy, ok := t.strategies[strategyKey{state: state, benefit: benefit}]
	t.mu.RUnlock()

	if !known {
		return domain.BenefitRule{}, domain.NewConfigurationError(state, "", "no rule set loaded")
	}
	if !ok {
		return domain.BenefitRule{}, domain.NewValidationError("benefitType", fmt.Sprintf("unknown benefit type %q", benefit))
	}
	return strategy, nil
}

// States returns the loaded state codes in sorted order.
func (t *RuleTable) States() []domain.StateCode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make([]domain.StateCode, 0, len(t.ruleSets))
	for code := range t.ruleSets {
		states = append(states, code)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	return states
}

// RuleSets returns the loaded rule sets sorted by state code.
func (t *RuleTable) RuleSets() []*domain.StateRuleSet {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sets := make([]*domain.StateRuleSet, 0, len(t.ruleSets))
	for _, rs := range t.ruleSets {
		sets = append(sets, rs)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].State < sets[j].State })
	return sets
}

// Version returns the version label of the loaded rule data.
func (t *RuleTable) Version() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Len returns the number of loaded states.
func (t *RuleTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ruleSets)
}

// strategyBuilders derives per-benefit-type coefficients from a rule set.
// Supporting a new benefit type means adding an entry here and new fields
// to the rule data, not branching in the calculators.
var strategyBuilders = map[domain.BenefitType]func(*domain.StateRuleSet) (domain.BenefitRule, error){
	domain.BenefitService: func(rs *domain.StateRuleSet) (domain.BenefitRule, error) {
		return domain.BenefitRule{
			State:             rs.State,
			BenefitType:       domain.BenefitService,
			Multiplier:        rs.Multiplier,
			MinServiceYears:   rs.MinServiceYears,
			MinAge:            rs.MinRetirementAge,
			AnyAgeWithService: rs.AnyAgeWithService,
		}, nil
	},
	domain.BenefitEarly: func(rs *domain.StateRuleSet) (domain.BenefitRule, error) {
		return domain.BenefitRule{
			State:           rs.State,
			BenefitType:     domain.BenefitEarly,
			Multiplier:      rs.Multiplier,
			MinServiceYears: rs.MinServiceYears,
			MinAge:          rs.EarlyRetirementAge,
			ReduceBelowAge:  rs.MinRetirementAge,
			PenaltyPerYear:  rs.EarlyRetirementPenaltyPerYear,
		}, nil
	},
	domain.BenefitDisability: func(rs *domain.StateRuleSet) (domain.BenefitRule, error) {
		if rs.DisabilityMultiplier == nil {
			return domain.BenefitRule{}, domain.NewConfigurationError(rs.State, "disabilityMultiplier", "is required")
		}
		if rs.DisabilityMinServiceYears == nil {
			return domain.BenefitRule{}, domain.NewConfigurationError(rs.State, "disabilityMinServiceYears", "is required")
		}
		return domain.BenefitRule{
			State:           rs.State,
			BenefitType:     domain.BenefitDisability,
			Multiplier:      *rs.DisabilityMultiplier,
			MinServiceYears: *rs.DisabilityMinServiceYears,
		}, nil
	},
}

// StrategyFor derives the coefficients for one benefit type directly from a
// rule set, without going through a RuleTable.
func StrategyFor(rs *domain.StateRuleSet, benefit domain.BenefitType) (domain.BenefitRule, error) {
	if rs == nil {
		return domain.BenefitRule{}, domain.NewConfigurationError("", "", "rule set is required")
	}
	build, ok := strategyBuilders[benefit]
	if !ok {
		return domain.BenefitRule{}, domain.NewValidationError("benefitType", fmt.Sprintf("unknown benefit type %q", benefit))
	}
	return build(rs)
}
