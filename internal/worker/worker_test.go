package worker

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/pensionrules/internal/assessment"
	"github.com/opensource-finance/pensionrules/internal/bus"
	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/policy"
	"github.com/opensource-finance/pensionrules/internal/repository"
	"github.com/opensource-finance/pensionrules/internal/rules"
	"github.com/shopspring/decimal"
)

func newTestService(t *testing.T) (*assessment.Service, domain.Repository) {
	t.Helper()

	file, err := rules.DefaultRuleFile()
	if err != nil {
		t.Fatalf("failed to load default rules: %v", err)
	}
	table, err := rules.NewRuleTable(file.RuleSets, file.Version)
	if err != nil {
		t.Fatalf("failed to build rule table: %v", err)
	}
	engine, err := policy.NewEngine(2)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	if err := engine.LoadRules(file.Policies); err != nil {
		t.Fatalf("failed to load policies: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	processor := assessment.NewProcessor(table, engine, 0)
	return assessment.NewService(processor, repo, nil, 0), repo
}

func seedMember(t *testing.T, repo domain.Repository, tenantID, memberID, birth, credited string) {
	t.Helper()
	ctx := context.Background()

	birthDate, _ := time.Parse(time.DateOnly, birth)
	member := &domain.Member{
		ID:                   memberID,
		Name:                 "Worker Member",
		BirthDate:            birthDate,
		State:                domain.StateOH,
		FinalAverageSalary:   decimal.NewFromInt(60000),
		ContributionRate:     decimal.RequireFromString("0.10"),
		SpouseApprovalOnFile: true,
	}
	if err := repo.SaveMember(ctx, tenantID, member); err != nil {
		t.Fatalf("SaveMember failed: %v", err)
	}

	start, _ := time.Parse(time.DateOnly, "2000-01-01")
	end, _ := time.Parse(time.DateOnly, "2020-01-01")
	entry := &domain.ServiceHistoryEntry{
		StartDate:     start,
		EndDate:       &end,
		CreditedYears: decimal.RequireFromString(credited),
	}
	if err := repo.AddServiceEntry(ctx, tenantID, memberID, entry); err != nil {
		t.Fatalf("AddServiceEntry failed: %v", err)
	}
}

// collect subscribes to a topic and forwards decoded events.
func collect(t *testing.T, eventBus domain.EventBus, tenantID, topic string) <-chan domain.AssessmentEvent {
	t.Helper()
	events := make(chan domain.AssessmentEvent, 10)
	_, err := eventBus.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		var event domain.AssessmentEvent
		if err := bus.Decode(msg, &event); err != nil {
			return err
		}
		events <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return events
}

func receive(t *testing.T, events <-chan domain.AssessmentEvent) domain.AssessmentEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return domain.AssessmentEvent{}
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		service, _ := newTestService(t)
		w := NewWorker(eventBus, service)

		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}, WorkerCount: 1}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicAssessmentRequested {
			t.Errorf("expected topic %s, got %s", domain.TopicAssessmentRequested, stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("RequiresTenants", func(t *testing.T) {
		service, _ := newTestService(t)
		w := NewWorker(eventBus, service)
		if err := w.Start(Config{}); err == nil {
			t.Error("expected error without tenants")
		}
	})

	t.Run("ProcessEligibleMember", func(t *testing.T) {
		service, repo := newTestService(t)
		seedMember(t, repo, "tenant-ok", "member-ok", "1960-03-01", "20")

		w := NewWorker(eventBus, service)
		if err := w.Start(Config{TenantIDs: []string{"tenant-ok"}, WorkerCount: 2}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		completed := collect(t, eventBus, "tenant-ok", domain.TopicAssessmentCompleted)

		req := domain.AssessmentRequest{
			RequestID:   "req-001",
			MemberID:    "member-ok",
			BenefitType: "service",
			AsOf:        "2024-06-30",
			TraceID:     "trace-001",
		}
		if err := bus.PublishJSON(context.Background(), eventBus, "tenant-ok", domain.TopicAssessmentRequested, req); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		event := receive(t, completed)
		if event.RequestID != "req-001" {
			t.Errorf("expected request id req-001, got %s", event.RequestID)
		}
		if event.Status != domain.StatusEligible {
			t.Errorf("expected ELIGIBLE, got %s (reasons %v)", event.Status, event.Reasons)
		}
		if event.TraceID != "trace-001" {
			t.Errorf("expected trace-001, got %s", event.TraceID)
		}

		stored, err := repo.GetAssessment(context.Background(), "tenant-ok", event.AssessmentID)
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}
		if stored.State != domain.StateOH {
			t.Errorf("expected OH assessment, got %s", stored.State)
		}
	})

	t.Run("IneligiblePublished", func(t *testing.T) {
		service, repo := newTestService(t)
		seedMember(t, repo, "tenant-inel", "member-young", "1992-03-01", "2")

		w := NewWorker(eventBus, service)
		if err := w.Start(Config{TenantIDs: []string{"tenant-inel"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		ineligible := collect(t, eventBus, "tenant-inel", domain.TopicIneligible)

		req := domain.AssessmentRequest{MemberID: "member-young", BenefitType: "service", AsOf: "2024-06-30"}
		_ = bus.PublishJSON(context.Background(), eventBus, "tenant-inel", domain.TopicAssessmentRequested, req)

		event := receive(t, ineligible)
		if event.Status != domain.StatusIneligible {
			t.Errorf("expected INELIGIBLE, got %s", event.Status)
		}
		if len(event.Reasons) == 0 {
			t.Error("expected reasons")
		}
		if event.RequestID == "" {
			t.Error("expected request id to default to the message id")
		}
	})

	t.Run("InvalidRequestCounted", func(t *testing.T) {
		service, _ := newTestService(t)
		w := NewWorker(eventBus, service)
		if err := w.Start(Config{TenantIDs: []string{"tenant-bad"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		_ = eventBus.Publish(context.Background(), "tenant-bad", domain.TopicAssessmentRequested, []byte(`{"memberId":"m","asOf":"not-a-date"}`))

		deadline := time.Now().Add(2 * time.Second)
		for w.GetStats().Failed == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		if failed := w.GetStats().Failed; failed != 1 {
			t.Errorf("expected 1 failed request, got %d", failed)
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		service, _ := newTestService(t)
		w := NewWorker(eventBus, service)
		if err := w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		if stats := w.GetStats(); stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}
