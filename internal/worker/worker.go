// Package worker assesses members asynchronously from the EventBus.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/pensionrules/internal/assessment"
	"github.com/opensource-finance/pensionrules/internal/bus"
	"github.com/opensource-finance/pensionrules/internal/domain"
)

// Worker consumes assessment requests, runs them through the assessment
// service and publishes the outcome.
type Worker struct {
	bus     domain.EventBus
	service *assessment.Service

	mu            sync.Mutex
	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to consume requests for.
	TenantIDs []string

	// WorkerCount bounds concurrent assessments across all tenants.
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, service *assessment.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     eventBus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to assessment requests for every configured tenant.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return fmt.Errorf("at least one tenant is required")
	}
	count := cfg.WorkerCount
	if count <= 0 {
		count = 1
	}
	w.sem = make(chan struct{}, count)

	started := 0
	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no tenant workers started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"concurrency", count,
	)
	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAssessmentRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.dispatch(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAssessmentRequested,
	)
	return nil
}

// dispatch runs a request once a concurrency slot is free.
func (w *Worker) dispatch(ctx context.Context, tenantID string, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return w.ctx.Err()
	}

	w.wg.Add(1)
	defer func() {
		<-w.sem
		w.wg.Done()
	}()

	if err := w.handleRequest(ctx, tenantID, msg); err != nil {
		w.failed.Add(1)
		return err
	}
	w.processed.Add(1)
	return nil
}

// handleRequest assesses one member and publishes the completed event.
// Ineligible members are also announced on the ineligible topic.
func (w *Worker) handleRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req domain.AssessmentRequest
	if err := bus.Decode(msg, &req); err != nil {
		slog.Error("failed to parse assessment request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if req.RequestID == "" {
		req.RequestID = msg.ID
	}

	asOf, err := time.Parse(time.DateOnly, req.AsOf)
	if err != nil {
		slog.Error("invalid as-of date",
			"request_id", req.RequestID,
			"as_of", req.AsOf,
		)
		return domain.NewValidationError("asOf", fmt.Sprintf("invalid date %q", req.AsOf))
	}

	result, err := w.service.AssessMember(ctx, tenantID, req.MemberID, domain.BenefitType(req.BenefitType), asOf, req.TraceID)
	if err != nil {
		slog.Error("assessment failed",
			"request_id", req.RequestID,
			"member_id", req.MemberID,
			"error_code", domain.ErrorCode(err),
			"error", err,
		)
		return err
	}

	event := assessment.Event(result, req.RequestID)
	if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicAssessmentCompleted, event); err != nil {
		slog.Error("failed to publish assessment",
			"assessment_id", result.ID,
			"error", err,
		)
	}
	if assessment.IsIneligible(result) {
		if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicIneligible, event); err != nil {
			slog.Error("failed to publish ineligible event",
				"assessment_id", result.ID,
				"error", err,
			)
		}
	}

	slog.Info("assessment processed",
		"request_id", req.RequestID,
		"assessment_id", result.ID,
		"tenant_id", tenantID,
		"member_id", req.MemberID,
		"status", event.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and waits for in-flight assessments.
func (w *Worker) Stop() error {
	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.cancel()
	w.wg.Wait()

	slog.Info("workers stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
