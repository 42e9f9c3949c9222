package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/pensionrules/internal/domain"
)

// Source produces the rule sets and policies the service runs with: the
// rule file, overlaid with anything persisted for the owning tenant.
type Source struct {
	file     *RuleFile
	repo     domain.Repository
	tenantID string
}

// NewSource creates a source. repo may be nil to use the file alone.
func NewSource(file *RuleFile, repo domain.Repository, tenantID string) *Source {
	if tenantID == "" {
		tenantID = domain.DefaultTenant
	}
	return &Source{file: file, repo: repo, tenantID: tenantID}
}

// TenantID returns the tenant owning persisted rule sets and policies.
func (s *Source) TenantID() string {
	return s.tenantID
}

// Persistent reports whether stored rule sets and policies are overlaid.
func (s *Source) Persistent() bool {
	return s.repo != nil
}

// Snapshot is one consistent load of rule sets and policies.
type Snapshot struct {
	RuleSets []*domain.StateRuleSet
	Policies []*domain.PolicyRule
	Version  string
}

// Load reads the current rule sets and policies. Persisted rule sets replace
// file rule sets for the same state; persisted policies replace file policies
// with the same ID. Every rule set is validated.
func (s *Source) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Version: s.file.Version}

	byState := make(map[domain.StateCode]*domain.StateRuleSet, len(s.file.RuleSets))
	for _, rs := range s.file.RuleSets {
		byState[rs.State] = rs
	}
	byID := make(map[string]*domain.PolicyRule, len(s.file.Policies))
	for _, p := range s.file.Policies {
		byID[p.ID] = p
	}

	if s.repo != nil {
		records, err := s.repo.ListStateRuleSets(ctx, s.tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to list stored rule sets: %w", err)
		}
		var latest *domain.RuleSetRecord
		for _, rec := range records {
			if err := rec.RuleSet.Validate(); err != nil {
				return nil, err
			}
			byState[rec.RuleSet.State] = rec.RuleSet
			if latest == nil || rec.UpdatedAt.After(latest.UpdatedAt) {
				latest = rec
			}
		}
		if latest != nil && latest.Version != "" {
			snap.Version = latest.Version
		}

		policies, err := s.repo.ListPolicyRules(ctx, s.tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to list stored policies: %w", err)
		}
		for _, p := range policies {
			byID[p.ID] = p
		}
	}

	for _, rs := range byState {
		snap.RuleSets = append(snap.RuleSets, rs)
	}
	sort.Slice(snap.RuleSets, func(i, j int) bool {
		return snap.RuleSets[i].State < snap.RuleSets[j].State
	})
	for _, p := range byID {
		snap.Policies = append(snap.Policies, p)
	}
	sort.Slice(snap.Policies, func(i, j int) bool {
		return snap.Policies[i].ID < snap.Policies[j].ID
	})

	return snap, nil
}
