package rules

import (
	"errors"
	"testing"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/shopspring/decimal"
)

func TestCalculateCaliforniaServiceRetirement(t *testing.T) {
	result, err := Calculate(caFacts(65, "30"), caRuleSet())
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	if result.AnnualAmount.StringFixed(2) != "56250.00" {
		t.Errorf("expected annual 56250.00, got %s", result.AnnualAmount.StringFixed(2))
	}
	if result.MonthlyAmount.StringFixed(2) != "4687.50" {
		t.Errorf("expected monthly 4687.50, got %s", result.MonthlyAmount.StringFixed(2))
	}
	if result.Advisory {
		t.Errorf("expected non-advisory result, got reasons %v", result.AdvisoryReasons)
	}
	if !result.ReductionApplied.IsZero() {
		t.Errorf("expected no reduction, got %s", result.ReductionApplied)
	}
	if result.CalculationBasis != 3 {
		t.Errorf("expected 3-year salary basis, got %d", result.CalculationBasis)
	}
}

func TestCalculateEarlyRetirementReduction(t *testing.T) {
	rs := caRuleSet()
	rs.MinRetirementAge = 60
	rs.EarlyRetirementAge = 50
	rs.EarlyRetirementPenaltyPerYear = dec("0.05")
	rs.Multiplier = dec("0.02")

	facts := domain.MemberFacts{
		Age:                55,
		TotalServiceYears:  dec("20"),
		FinalAverageSalary: dec("60000"),
		ContributionRate:   dec("0.08"),
		State:              domain.StateCA,
		BenefitType:        domain.BenefitEarly,
	}

	result, err := Calculate(facts, rs)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	if !result.ReductionApplied.Equal(dec("0.25")) {
		t.Errorf("expected reduction 0.25, got %s", result.ReductionApplied)
	}
	if !result.BaseAnnualAmount.Equal(dec("24000")) {
		t.Errorf("expected base 24000, got %s", result.BaseAnnualAmount)
	}
	if !result.AnnualAmount.Equal(result.BaseAnnualAmount.Mul(dec("0.75"))) {
		t.Errorf("expected annual to be 75%% of base, got %s", result.AnnualAmount)
	}
	if !result.MonthlyAmount.Equal(dec("1500")) {
		t.Errorf("expected monthly 1500, got %s", result.MonthlyAmount)
	}
}

func TestCalculateRoundsHalfUp(t *testing.T) {
	facts := caFacts(65, "30")
	facts.TotalServiceYears = dec("1")
	facts.FinalAverageSalary = dec("100.2")

	result, err := Calculate(facts, caRuleSet())
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	// 100.2 * 0.025 = 2.505
	if result.AnnualAmount.StringFixed(2) != "2.51" {
		t.Errorf("expected 2.51, got %s", result.AnnualAmount.StringFixed(2))
	}
	if result.MonthlyAmount.StringFixed(2) != "0.21" {
		t.Errorf("expected 0.21, got %s", result.MonthlyAmount.StringFixed(2))
	}
}

func TestCalculateMonthlyDerivedFromRoundedAnnual(t *testing.T) {
	facts := caFacts(52, "10")
	facts.BenefitType = domain.BenefitEarly
	facts.FinalAverageSalary = dec("100000")

	result, err := Calculate(facts, caRuleSet())
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	// 25000 base, 3 years early at 6% each.
	if !result.AnnualAmount.Equal(dec("20500")) {
		t.Errorf("expected annual 20500, got %s", result.AnnualAmount)
	}
	if result.MonthlyAmount.StringFixed(2) != "1708.33" {
		t.Errorf("expected monthly 1708.33, got %s", result.MonthlyAmount.StringFixed(2))
	}
}

func TestCalculateAdvisoryWhenIneligible(t *testing.T) {
	result, err := Calculate(caFacts(60, "3"), caRuleSet())
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	if !result.Advisory {
		t.Fatal("expected advisory result for ineligible member")
	}
	if len(result.AdvisoryReasons) != 2 {
		t.Errorf("expected 2 advisory reasons, got %v", result.AdvisoryReasons)
	}
	if !result.AnnualAmount.Equal(dec("5625")) {
		t.Errorf("expected what-if annual 5625, got %s", result.AnnualAmount)
	}
}

func TestCalculateDisability(t *testing.T) {
	facts := caFacts(40, "10")
	facts.BenefitType = domain.BenefitDisability
	facts.FinalAverageSalary = dec("50000")

	result, err := Calculate(facts, caRuleSet())
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	if !result.MultiplierApplied.Equal(dec("0.018")) {
		t.Errorf("expected disability multiplier 0.018, got %s", result.MultiplierApplied)
	}
	if !result.AnnualAmount.Equal(dec("9000")) {
		t.Errorf("expected annual 9000, got %s", result.AnnualAmount)
	}
	if !result.MonthlyAmount.Equal(dec("750")) {
		t.Errorf("expected monthly 750, got %s", result.MonthlyAmount)
	}
}

func TestCalculateDeterministic(t *testing.T) {
	facts := caFacts(58, "17.33")
	facts.FinalAverageSalary = dec("81234.56")

	first, err := Calculate(facts, caRuleSet())
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		next, _ := Calculate(facts, caRuleSet())
		if !next.AnnualAmount.Equal(first.AnnualAmount) || !next.MonthlyAmount.Equal(first.MonthlyAmount) {
			t.Fatalf("run %d: expected %s/%s, got %s/%s", i, first.AnnualAmount, first.MonthlyAmount, next.AnnualAmount, next.MonthlyAmount)
		}
	}
}

func TestCalculateMonotonicInService(t *testing.T) {
	rs := caRuleSet()
	for _, bt := range domain.BenefitTypes {
		t.Run(string(bt), func(t *testing.T) {
			previous := decimal.Zero
			for years := 0; years <= 40; years++ {
				facts := caFacts(56, "0")
				facts.BenefitType = bt
				facts.TotalServiceYears = decimal.NewFromInt(int64(years))

				result, err := Calculate(facts, rs)
				if err != nil {
					t.Fatalf("calculate failed: %v", err)
				}
				if result.AnnualAmount.LessThan(previous) {
					t.Fatalf("annual decreased at %d years: %s < %s", years, result.AnnualAmount, previous)
				}
				previous = result.AnnualAmount
			}
		})
	}
}

func TestCalculateValidation(t *testing.T) {
	t.Run("zero salary", func(t *testing.T) {
		facts := caFacts(65, "30")
		facts.FinalAverageSalary = dec("0")
		_, err := Calculate(facts, caRuleSet())
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("negative service", func(t *testing.T) {
		_, err := Calculate(caFacts(65, "-0.5"), caRuleSet())
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("no rule set", func(t *testing.T) {
		_, err := Calculate(caFacts(65, "30"), nil)
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("expected configuration error, got %v", err)
		}
	})
}

func TestEarlyReductionClamped(t *testing.T) {
	strategy := domain.BenefitRule{ReduceBelowAge: 65, PenaltyPerYear: dec("0.06")}

	tests := []struct {
		age  int
		want string
	}{
		{70, "0"},
		{65, "0"},
		{64, "0.06"},
		{55, "0.6"},
		{40, "1"},
	}

	for _, tt := range tests {
		got := EarlyReduction(tt.age, strategy)
		if !got.Equal(dec(tt.want)) {
			t.Errorf("age %d: expected %s, got %s", tt.age, tt.want, got)
		}
	}
}
