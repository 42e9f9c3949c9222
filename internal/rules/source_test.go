package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/repository"
)

func newSourceRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSourceFileOnly(t *testing.T) {
	file, err := DefaultRuleFile()
	if err != nil {
		t.Fatalf("DefaultRuleFile failed: %v", err)
	}

	src := NewSource(file, nil, "")
	if src.TenantID() != domain.DefaultTenant {
		t.Errorf("expected default tenant, got %s", src.TenantID())
	}
	if src.Persistent() {
		t.Error("expected a file-only source not to be persistent")
	}

	snap, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.Version != file.Version {
		t.Errorf("expected version %s, got %s", file.Version, snap.Version)
	}
	if len(snap.RuleSets) != 3 {
		t.Fatalf("expected 3 rule sets, got %d", len(snap.RuleSets))
	}
	for i, want := range []domain.StateCode{domain.StateCA, domain.StateIN, domain.StateOH} {
		if snap.RuleSets[i].State != want {
			t.Errorf("rule set %d: expected %s, got %s", i, want, snap.RuleSets[i].State)
		}
	}
	if len(snap.Policies) != len(file.Policies) {
		t.Errorf("expected %d policies, got %d", len(file.Policies), len(snap.Policies))
	}
}

func TestSourceOverlay(t *testing.T) {
	file, _ := DefaultRuleFile()
	repo := newSourceRepo(t)
	ctx := context.Background()

	ca := caRuleSet()
	ca.Multiplier = dec("0.027")
	if err := repo.SaveStateRuleSet(ctx, "admin", &domain.RuleSetRecord{
		RuleSet:   ca,
		Version:   "2025.1",
		UpdatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("SaveStateRuleSet failed: %v", err)
	}

	if err := repo.SavePolicyRule(ctx, "admin", &domain.PolicyRule{
		ID:         "contribution-floor",
		Name:       "Contribution floor",
		Expression: "contribution_rate < min_contribution_rate",
		Reason:     "stored reason",
		Severity:   domain.SeverityCritical,
		Enabled:    true,
	}); err != nil {
		t.Fatalf("SavePolicyRule failed: %v", err)
	}

	snap, err := NewSource(file, repo, "admin").Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if snap.Version != "2025.1" {
		t.Errorf("expected stored version 2025.1, got %s", snap.Version)
	}
	if len(snap.RuleSets) != 3 {
		t.Fatalf("expected 3 rule sets, got %d", len(snap.RuleSets))
	}
	if !snap.RuleSets[0].Multiplier.Equal(dec("0.027")) {
		t.Errorf("expected stored CA multiplier 0.027, got %s", snap.RuleSets[0].Multiplier)
	}
	if !snap.RuleSets[2].Multiplier.Equal(dec("0.022")) {
		t.Errorf("expected file OH multiplier 0.022, got %s", snap.RuleSets[2].Multiplier)
	}

	var found bool
	for _, p := range snap.Policies {
		if p.ID == "contribution-floor" {
			found = true
			if p.Reason != "stored reason" || p.Severity != domain.SeverityCritical {
				t.Errorf("expected stored policy to replace file policy, got %+v", p)
			}
		}
	}
	if !found {
		t.Error("expected contribution-floor policy")
	}
	if len(snap.Policies) != len(file.Policies) {
		t.Errorf("expected %d policies after overlay, got %d", len(file.Policies), len(snap.Policies))
	}
}

func TestSourceRejectsInvalidStoredRuleSet(t *testing.T) {
	file, _ := DefaultRuleFile()
	repo := newSourceRepo(t)
	ctx := context.Background()

	broken := caRuleSet()
	broken.DisabilityMultiplier = nil
	if err := repo.SaveStateRuleSet(ctx, "admin", &domain.RuleSetRecord{RuleSet: broken, Version: "bad"}); err != nil {
		t.Fatalf("SaveStateRuleSet failed: %v", err)
	}

	_, err := NewSource(file, repo, "admin").Load(ctx)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
