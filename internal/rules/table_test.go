package rules

import (
	"errors"
	"testing"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// caRuleSet mirrors the shipped California data.
func caRuleSet() *domain.StateRuleSet {
	return &domain.StateRuleSet{
		State:                         domain.StateCA,
		Name:                          "California",
		Multiplier:                    dec("0.025"),
		MinRetirementAge:              55,
		EarlyRetirementAge:            50,
		MinServiceYears:               dec("5"),
		VestingYears:                  dec("5"),
		MinContributionRate:           dec("0.07"),
		MaxContributionRate:           dec("0.12"),
		EarlyRetirementPenaltyPerYear: dec("0.06"),
		FinalAverageSalaryPeriodYears: 3,
		MaxPurchasedServiceYears:      dec("5"),
		DisabilityMultiplier:          decPtr("0.018"),
		DisabilityMinServiceYears:     decPtr("5"),
		EmployerContributionRate:      dec("0.15"),
		COLARate:                      dec("0.02"),
		RequiresSpouseApproval:        true,
		TaxExempt:                     true,
		ReportDueDate:                 "09-30",
		AuditFrequencyYears:           3,
	}
}

func ohRuleSet() *domain.StateRuleSet {
	rs := caRuleSet()
	rs.State = domain.StateOH
	rs.Name = "Ohio"
	rs.Multiplier = dec("0.022")
	rs.MinRetirementAge = 60
	rs.EarlyRetirementAge = 55
	return rs
}

func TestNewRuleTable(t *testing.T) {
	table, err := NewRuleTable([]*domain.StateRuleSet{ohRuleSet(), caRuleSet()}, "test")
	if err != nil {
		t.Fatalf("failed to create rule table: %v", err)
	}

	if table.Len() != 2 {
		t.Errorf("expected 2 states, got %d", table.Len())
	}
	if table.Version() != "test" {
		t.Errorf("expected version test, got %s", table.Version())
	}

	states := table.States()
	if states[0] != domain.StateCA || states[1] != domain.StateOH {
		t.Errorf("expected sorted states [CA OH], got %v", states)
	}

	sets := table.RuleSets()
	if sets[0].State != domain.StateCA {
		t.Errorf("expected CA first, got %s", sets[0].State)
	}
}

func TestRuleTableLookup(t *testing.T) {
	table, _ := NewRuleTable([]*domain.StateRuleSet{caRuleSet()}, "test")

	rs, err := table.Lookup(domain.StateCA)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !rs.Multiplier.Equal(dec("0.025")) {
		t.Errorf("expected multiplier 0.025, got %s", rs.Multiplier)
	}

	_, err = table.Lookup("TX")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected configuration error for unknown state, got %v", err)
	}
}

func TestRuleTableStrategy(t *testing.T) {
	table, _ := NewRuleTable([]*domain.StateRuleSet{caRuleSet()}, "test")

	t.Run("early", func(t *testing.T) {
		s, err := table.Strategy(domain.StateCA, domain.BenefitEarly)
		if err != nil {
			t.Fatalf("strategy failed: %v", err)
		}
		if s.MinAge != 50 || s.ReduceBelowAge != 55 {
			t.Errorf("expected min age 50 and reduction below 55, got %d and %d", s.MinAge, s.ReduceBelowAge)
		}
		if !s.PenaltyPerYear.Equal(dec("0.06")) {
			t.Errorf("expected penalty 0.06, got %s", s.PenaltyPerYear)
		}
	})

	t.Run("disability", func(t *testing.T) {
		s, err := table.Strategy(domain.StateCA, domain.BenefitDisability)
		if err != nil {
			t.Fatalf("strategy failed: %v", err)
		}
		if s.MinAge != 0 {
			t.Errorf("expected no age requirement, got %d", s.MinAge)
		}
		if !s.Multiplier.Equal(dec("0.018")) {
			t.Errorf("expected disability multiplier 0.018, got %s", s.Multiplier)
		}
	})

	t.Run("unknown benefit type", func(t *testing.T) {
		_, err := table.Strategy(domain.StateCA, "lump_sum")
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := table.Strategy("TX", domain.BenefitService)
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("expected configuration error, got %v", err)
		}
	})
}

func TestRuleTableRejectsMissingDisabilityCoefficients(t *testing.T) {
	rs := caRuleSet()
	rs.DisabilityMultiplier = nil

	_, err := NewRuleTable([]*domain.StateRuleSet{rs}, "test")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigurationError, got %T", err)
	}
	if cfgErr.State != domain.StateCA {
		t.Errorf("expected state CA on error, got %s", cfgErr.State)
	}
}

func TestRuleTableRejectsDuplicates(t *testing.T) {
	_, err := NewRuleTable([]*domain.StateRuleSet{caRuleSet(), caRuleSet()}, "test")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected configuration error for duplicate state, got %v", err)
	}
}

func TestRuleTableReloadKeepsPreviousOnError(t *testing.T) {
	table, _ := NewRuleTable([]*domain.StateRuleSet{caRuleSet()}, "v1")

	bad := ohRuleSet()
	bad.Multiplier = dec("0")
	if err := table.Reload([]*domain.StateRuleSet{caRuleSet(), bad}, "v2"); err == nil {
		t.Fatal("expected reload to fail")
	}

	if table.Version() != "v1" {
		t.Errorf("expected version v1 after failed reload, got %s", table.Version())
	}
	if table.Len() != 1 {
		t.Errorf("expected 1 state after failed reload, got %d", table.Len())
	}

	if err := table.Reload([]*domain.StateRuleSet{caRuleSet(), ohRuleSet()}, "v2"); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if table.Len() != 2 || table.Version() != "v2" {
		t.Errorf("expected 2 states at v2, got %d at %s", table.Len(), table.Version())
	}
}

func TestStrategyForNilRuleSet(t *testing.T) {
	_, err := StrategyFor(nil, domain.BenefitService)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
