package assessment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/policy"
	"github.com/opensource-finance/pensionrules/internal/rules"
	"github.com/shopspring/decimal"
)

func newTestProcessor(t *testing.T, colaYears int) *Processor {
	t.Helper()

	file, err := rules.DefaultRuleFile()
	if err != nil {
		t.Fatalf("failed to load default rules: %v", err)
	}
	table, err := rules.NewRuleTable(file.RuleSets, file.Version)
	if err != nil {
		t.Fatalf("failed to build rule table: %v", err)
	}
	engine, err := policy.NewEngine(4)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	if err := engine.LoadRules(file.Policies); err != nil {
		t.Fatalf("failed to load policies: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	return NewProcessor(table, engine, colaYears)
}

func years(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func TestProcessor(t *testing.T) {
	proc := newTestProcessor(t, 0)
	ctx := context.Background()

	t.Run("Eligible", func(t *testing.T) {
		input := &Input{
			TenantID:           "tenant-001",
			TraceID:            "trace-001",
			State:              domain.StateCA,
			BenefitType:        domain.BenefitService,
			Age:                65,
			ServiceYears:       years("30"),
			FinalAverageSalary: decimal.NewFromInt(75000),
			ContributionRate:   decimal.RequireFromString("0.08"),
			Documents:          domain.PolicyContext{SpouseApprovalOnFile: true},
			AsOf:               day("2024-07-01"),
		}

		a, err := proc.Process(ctx, input)
		if err != nil {
			t.Fatalf("process failed: %v", err)
		}

		if !a.Verdict.Eligible {
			t.Errorf("expected eligible, got %v", a.Verdict.Reasons)
		}
		if a.Benefit.AnnualAmount.StringFixed(2) != "56250.00" {
			t.Errorf("expected annual 56250.00, got %s", a.Benefit.AnnualAmount.StringFixed(2))
		}
		if a.Readiness.Score != 100 {
			t.Errorf("expected readiness 100, got %d", a.Readiness.Score)
		}
		if a.Compliance == nil || !a.Compliance.Compliant {
			t.Errorf("expected compliant, got %+v", a.Compliance)
		}
		if a.TenantID != "tenant-001" {
			t.Errorf("expected tenantID 'tenant-001', got '%s'", a.TenantID)
		}
		if a.Metadata.TraceID != "trace-001" {
			t.Errorf("expected traceID 'trace-001', got '%s'", a.Metadata.TraceID)
		}
		if a.ID == "" {
			t.Error("missing assessment ID")
		}
	})

	t.Run("UnderVested", func(t *testing.T) {
		input := &Input{
			TenantID:           "tenant-001",
			State:              domain.StateCA,
			BenefitType:        domain.BenefitService,
			Age:                60,
			ServiceYears:       years("3"),
			FinalAverageSalary: decimal.NewFromInt(75000),
			ContributionRate:   decimal.RequireFromString("0.08"),
			AsOf:               day("2024-07-01"),
		}

		a, err := proc.Process(ctx, input)
		if err != nil {
			t.Fatalf("process failed: %v", err)
		}

		if !IsIneligible(a) {
			t.Fatal("expected ineligible")
		}
		if !a.Benefit.Advisory {
			t.Error("expected advisory benefit")
		}
		if a.ToResponse().Status != domain.StatusIneligible {
			t.Errorf("expected INELIGIBLE status, got %s", a.ToResponse().Status)
		}

		// Two eligibility reasons plus the missing spouse approval.
		reasons := GetReasons(a)
		if len(reasons) != 3 {
			t.Errorf("expected 3 reasons, got %v", reasons)
		}
	})

	t.Run("ServiceHistory", func(t *testing.T) {
		end := day("2010-01-01")
		input := &Input{
			TenantID:    "tenant-001",
			State:       domain.StateOH,
			BenefitType: domain.BenefitEarly,
			Age:         57,
			ServiceHistory: []domain.ServiceHistoryEntry{
				{StartDate: day("2000-01-01"), EndDate: &end, CreditedYears: decimal.NewFromInt(10)},
				{StartDate: day("2010-01-01")},
			},
			FinalAverageSalary: decimal.NewFromInt(60000),
			ContributionRate:   decimal.RequireFromString("0.12"),
			AsOf:               day("2014-01-01"),
		}

		a, err := proc.Process(ctx, input)
		if err != nil {
			t.Fatalf("process failed: %v", err)
		}

		// 1461 days of open service is exactly four years.
		if !a.ServiceCredit.TotalYears.Equal(decimal.NewFromInt(14)) {
			t.Errorf("expected 14 years, got %s", a.ServiceCredit.TotalYears)
		}
		if !a.Benefit.ReductionApplied.Equal(decimal.RequireFromString("0.18")) {
			t.Errorf("expected reduction 0.18, got %s", a.Benefit.ReductionApplied)
		}
	})

	t.Run("MetadataPopulated", func(t *testing.T) {
		input := &Input{
			TenantID:           "tenant-001",
			State:              domain.StateIN,
			BenefitType:        domain.BenefitDisability,
			Age:                45,
			ServiceYears:       years("12"),
			FinalAverageSalary: decimal.NewFromInt(50000),
			ContributionRate:   decimal.RequireFromString("0.03"),
			AsOf:               day("2024-07-01"),
		}

		a, err := proc.Process(ctx, input)
		if err != nil {
			t.Fatalf("process failed: %v", err)
		}

		if a.Metadata.TraceID == "" {
			t.Error("missing traceID in metadata")
		}
		if a.Metadata.PoliciesEvaluated != 3 {
			t.Errorf("expected 3 policies evaluated, got %d", a.Metadata.PoliciesEvaluated)
		}
		if a.Metadata.EngineVersion == "" {
			t.Error("missing engine version")
		}
		if a.Metadata.RuleSetVersion == "" {
			t.Error("missing rule set version")
		}
		if a.Metadata.TotalMs < 0 {
			t.Error("TotalMs should be non-negative")
		}
	})
}

func TestProcessorCOLAProjection(t *testing.T) {
	proc := newTestProcessor(t, 5)

	a, err := proc.Process(context.Background(), &Input{
		State:              domain.StateCA,
		BenefitType:        domain.BenefitService,
		Age:                65,
		ServiceYears:       years("30"),
		FinalAverageSalary: decimal.NewFromInt(75000),
		ContributionRate:   decimal.RequireFromString("0.08"),
		AsOf:               day("2024-07-01"),
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if len(a.COLAProjection) != 5 {
		t.Fatalf("expected 5 projection years, got %d", len(a.COLAProjection))
	}
	if !a.COLAProjection[0].AnnualAmount.Equal(a.Benefit.AnnualAmount) {
		t.Errorf("expected first year to equal the benefit, got %s", a.COLAProjection[0].AnnualAmount)
	}
}

func TestProcessorErrors(t *testing.T) {
	proc := newTestProcessor(t, 0)
	ctx := context.Background()

	base := func() *Input {
		return &Input{
			State:              domain.StateCA,
			BenefitType:        domain.BenefitService,
			Age:                65,
			ServiceYears:       years("30"),
			FinalAverageSalary: decimal.NewFromInt(75000),
			ContributionRate:   decimal.RequireFromString("0.08"),
			AsOf:               day("2024-07-01"),
		}
	}

	tests := []struct {
		name   string
		mutate func(*Input)
		target error
	}{
		{"unknown state", func(in *Input) { in.State = "TX" }, domain.ErrConfiguration},
		{"unknown benefit type", func(in *Input) { in.BenefitType = "lump_sum" }, domain.ErrValidation},
		{"missing as-of date", func(in *Input) { in.AsOf = time.Time{} }, domain.ErrValidation},
		{"negative service", func(in *Input) { in.ServiceYears = years("-1") }, domain.ErrValidation},
		{"zero salary", func(in *Input) { in.FinalAverageSalary = decimal.Zero }, domain.ErrValidation},
		{"overlapping history", func(in *Input) {
			e1, e2 := day("2010-01-01"), day("2015-01-01")
			in.ServiceYears = nil
			in.ServiceHistory = []domain.ServiceHistoryEntry{
				{StartDate: day("2000-01-01"), EndDate: &e1, CreditedYears: decimal.NewFromInt(10)},
				{StartDate: day("2005-01-01"), EndDate: &e2, CreditedYears: decimal.NewFromInt(10)},
			}
		}, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := base()
			tt.mutate(input)
			_, err := proc.Process(ctx, input)
			if !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestInputFromSnapshot(t *testing.T) {
	snapshot := &domain.MemberSnapshot{
		Member: &domain.Member{
			ID:                 "member-001",
			BirthDate:          day("1960-08-15"),
			State:              domain.StateCA,
			FinalAverageSalary: decimal.NewFromInt(90000),
			ContributionRate:   decimal.RequireFromString("0.08"),
			MedicalExamOnFile:  true,
		},
	}

	input, err := InputFromSnapshot("tenant-001", snapshot, domain.BenefitService, day("2024-08-14"))
	if err != nil {
		t.Fatalf("failed to build input: %v", err)
	}
	if input.Age != 63 {
		t.Errorf("expected age 63 the day before the birthday, got %d", input.Age)
	}
	if input.MemberID != "member-001" || !input.Documents.MedicalExamOnFile {
		t.Errorf("unexpected input %+v", input)
	}

	if _, err := InputFromSnapshot("tenant-001", snapshot, domain.BenefitService, day("1950-01-01")); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for as-of before birth, got %v", err)
	}
	if _, err := InputFromSnapshot("tenant-001", nil, domain.BenefitService, day("2024-01-01")); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for nil snapshot, got %v", err)
	}
}
