package rules

import (
	"errors"
	"testing"

	"github.com/opensource-finance/pensionrules/internal/domain"
)

func TestProjectCOLA(t *testing.T) {
	result := domain.BenefitResult{State: domain.StateCA, AnnualAmount: dec("1000")}

	projection, err := ProjectCOLA(result, caRuleSet(), 3)
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}
	if len(projection) != 3 {
		t.Fatalf("expected 3 years, got %d", len(projection))
	}

	want := []struct {
		annual  string
		monthly string
	}{
		{"1000.00", "83.33"},
		{"1020.00", "85.00"},
		{"1040.40", "86.70"},
	}
	for i, w := range want {
		if projection[i].Year != i+1 {
			t.Errorf("entry %d: expected year %d, got %d", i, i+1, projection[i].Year)
		}
		if projection[i].AnnualAmount.StringFixed(2) != w.annual {
			t.Errorf("year %d: expected annual %s, got %s", i+1, w.annual, projection[i].AnnualAmount.StringFixed(2))
		}
		if projection[i].MonthlyAmount.StringFixed(2) != w.monthly {
			t.Errorf("year %d: expected monthly %s, got %s", i+1, w.monthly, projection[i].MonthlyAmount.StringFixed(2))
		}
	}
}

func TestProjectCOLAErrors(t *testing.T) {
	result := domain.BenefitResult{State: domain.StateCA, AnnualAmount: dec("1000")}

	if _, err := ProjectCOLA(result, caRuleSet(), -1); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := ProjectCOLA(result, nil, 3); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}

	projection, err := ProjectCOLA(result, caRuleSet(), 0)
	if err != nil || len(projection) != 0 {
		t.Errorf("expected empty projection, got %v, %v", projection, err)
	}
}
