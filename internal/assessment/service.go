package assessment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/pensionrules/internal/domain"
)

const defaultMemberTTL = 10 * time.Minute

// Service assesses stored members. Member snapshots are read through the
// cache; assessments and audit records are persisted.
type Service struct {
	processor *Processor
	repo      domain.Repository
	cache     domain.Cache
	memberTTL time.Duration
}

// NewService creates a service. cache may be nil.
func NewService(processor *Processor, repo domain.Repository, c domain.Cache, memberTTL time.Duration) *Service {
	if memberTTL <= 0 {
		memberTTL = defaultMemberTTL
	}
	return &Service{
		processor: processor,
		repo:      repo,
		cache:     c,
		memberTTL: memberTTL,
	}
}

// Processor returns the underlying processor.
func (s *Service) Processor() *Processor {
	return s.processor
}

// LoadSnapshot returns the member and their service history, from cache
// when possible.
func (s *Service) LoadSnapshot(ctx context.Context, tenantID, memberID string) (*domain.MemberSnapshot, error) {
	if s.cache != nil {
		snapshot, err := s.cache.GetMember(ctx, tenantID, memberID)
		if err != nil {
			slog.Warn("member cache read failed",
				"tenant_id", tenantID,
				"member_id", memberID,
				"error", err,
			)
		} else if snapshot != nil {
			return snapshot, nil
		}
	}

	member, err := s.repo.GetMember(ctx, tenantID, memberID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListServiceHistory(ctx, tenantID, memberID)
	if err != nil {
		return nil, err
	}
	snapshot := &domain.MemberSnapshot{Member: member, ServiceHistory: history}

	if s.cache != nil {
		if err := s.cache.SetMember(ctx, tenantID, memberID, snapshot, s.memberTTL); err != nil {
			slog.Warn("member cache write failed",
				"tenant_id", tenantID,
				"member_id", memberID,
				"error", err,
			)
		}
	}
	return snapshot, nil
}

// Invalidate drops a cached member snapshot.
func (s *Service) Invalidate(ctx context.Context, tenantID, memberID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateMember(ctx, tenantID, memberID); err != nil {
		slog.Warn("member cache invalidation failed",
			"tenant_id", tenantID,
			"member_id", memberID,
			"error", err,
		)
	}
}

// AssessMember runs the pipeline for a stored member and saves the result.
func (s *Service) AssessMember(ctx context.Context, tenantID, memberID string, benefit domain.BenefitType, asOf time.Time, traceID string) (*domain.Assessment, error) {
	snapshot, err := s.LoadSnapshot(ctx, tenantID, memberID)
	if err != nil {
		return nil, err
	}

	input, err := InputFromSnapshot(tenantID, snapshot, benefit, asOf)
	if err != nil {
		return nil, err
	}
	input.TraceID = traceID

	result, err := s.processor.Process(ctx, input)
	if err != nil {
		return nil, err
	}

	if err := s.Save(ctx, tenantID, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Save persists an assessment and its audit record.
func (s *Service) Save(ctx context.Context, tenantID string, result *domain.Assessment) error {
	if err := s.repo.SaveAssessment(ctx, tenantID, result); err != nil {
		return fmt.Errorf("failed to save assessment: %w", err)
	}

	status := domain.StatusEligible
	if IsIneligible(result) {
		status = domain.StatusIneligible
	}
	record := &domain.AuditRecord{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Action:     domain.AuditAssessmentCreated,
		EntityType: "assessment",
		EntityID:   result.ID,
		Actor:      "engine",
		Details: map[string]string{
			"member_id":    result.MemberID,
			"state":        string(result.State),
			"benefit_type": string(result.BenefitType),
			"status":       status,
			"trace_id":     result.Metadata.TraceID,
		},
		Timestamp: time.Now().UTC(),
	}
	if err := s.repo.SaveAuditRecord(ctx, tenantID, record); err != nil {
		slog.Error("failed to save audit record",
			"assessment_id", result.ID,
			"error", err,
		)
	}
	return nil
}

// Event summarizes an assessment for publication.
func Event(result *domain.Assessment, requestID string) domain.AssessmentEvent {
	status := domain.StatusEligible
	if IsIneligible(result) {
		status = domain.StatusIneligible
	}
	return domain.AssessmentEvent{
		RequestID:    requestID,
		AssessmentID: result.ID,
		MemberID:     result.MemberID,
		State:        result.State,
		BenefitType:  result.BenefitType,
		Status:       status,
		Reasons:      GetReasons(result),
		TraceID:      result.Metadata.TraceID,
	}
}
