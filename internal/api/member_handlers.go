package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/pensionrules/internal/bus"
	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/rules"
	"github.com/shopspring/decimal"
)

// MemberRequest is the body for POST /members.
type MemberRequest struct {
	ID                   string          `json:"id,omitempty"`
	ExternalID           string          `json:"externalId,omitempty"`
	Name                 string          `json:"name"`
	BirthDate            string          `json:"birthDate"`
	State                string          `json:"state"`
	FinalAverageSalary   decimal.Decimal `json:"finalAverageSalary"`
	ContributionRate     decimal.Decimal `json:"contributionRate"`
	MedicalExamOnFile    bool            `json:"medicalExamOnFile"`
	SpouseApprovalOnFile bool            `json:"spouseApprovalOnFile"`
}

// CreateMember stores a member record. Members must belong to a loaded state.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	var req MemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	birth, err := parseDate("birthDate", req.BirthDate)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := domain.ParseStateCode(req.State)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.table.Lookup(state); err != nil {
		writeError(w, err)
		return
	}
	if req.FinalAverageSalary.IsNegative() {
		writeError(w, domain.NewValidationError("finalAverageSalary", "must not be negative"))
		return
	}
	if req.ContributionRate.IsNegative() {
		writeError(w, domain.NewValidationError("contributionRate", "must not be negative"))
		return
	}

	member := &domain.Member{
		ID:                   req.ID,
		ExternalID:           req.ExternalID,
		Name:                 req.Name,
		BirthDate:            birth,
		State:                state,
		FinalAverageSalary:   req.FinalAverageSalary,
		ContributionRate:     req.ContributionRate,
		MedicalExamOnFile:    req.MedicalExamOnFile,
		SpouseApprovalOnFile: req.SpouseApprovalOnFile,
	}
	if member.ID == "" {
		member.ID = uuid.New().String()
	}

	if err := h.repo.SaveMember(ctx, tenantID, member); err != nil {
		writeError(w, err)
		return
	}
	h.invalidate(r, member.ID)
	h.audit(r, domain.AuditMemberCreated, "member", member.ID, map[string]string{
		"state": string(member.State),
	})

	slog.Info("member saved", "tenant_id", tenantID, "member_id", member.ID)
	writeJSON(w, http.StatusCreated, member)
}

// GetMember returns a member with their service history.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeUnavailable(w, "repository")
		return
	}

	snapshot, err := h.service.LoadSnapshot(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// AddServiceEntry appends a service history entry. The entry must not
// overlap the member's existing history.
func (h *Handler) AddServiceEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	memberID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	var req ServiceEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	entry, err := req.toEntry(0)
	if err != nil {
		writeError(w, err)
		return
	}

	member, err := h.repo.GetMember(ctx, tenantID, memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := h.repo.ListServiceHistory(ctx, tenantID, memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	rs, err := h.table.Lookup(member.State)
	if err != nil {
		writeError(w, err)
		return
	}

	// Resolve the combined history so overlaps and malformed entries are
	// rejected before anything is written.
	asOf, _ := parseAsOf("")
	if _, err := rules.ResolveServiceCreditDetail(append(history, entry), asOf, rs.MaxPurchasedServiceYears); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.AddServiceEntry(ctx, tenantID, memberID, &entry); err != nil {
		writeError(w, err)
		return
	}
	h.invalidate(r, memberID)
	h.audit(r, domain.AuditServiceAdded, "member", memberID, map[string]string{
		"entry_id":       entry.ID,
		"credited_years": entry.CreditedYears.String(),
	})

	writeJSON(w, http.StatusCreated, entry)
}

// MemberAssessRequest is the body for member assessment endpoints.
type MemberAssessRequest struct {
	BenefitType string `json:"benefitType"`
	AsOf        string `json:"asOf,omitempty"`
}

// AssessMember runs the pipeline for a stored member.
func (h *Handler) AssessMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.service == nil {
		writeUnavailable(w, "repository")
		return
	}

	var req MemberAssessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	asOf, err := parseAsOf(req.AsOf)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.AssessMember(ctx, GetTenantID(ctx), chi.URLParam(r, "id"), domain.BenefitType(req.BenefitType), asOf, GetTraceID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeAssessment(w, r, http.StatusOK, result)
}

// AssessMemberAsync queues an assessment for the worker. The result is
// published on the completed topic and stored with the member.
func (h *Handler) AssessMemberAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.bus == nil {
		writeUnavailable(w, "event bus")
		return
	}

	var req MemberAssessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := domain.ParseBenefitType(req.BenefitType); err != nil {
		writeError(w, err)
		return
	}
	asOf, err := parseAsOf(req.AsOf)
	if err != nil {
		writeError(w, err)
		return
	}

	msg := domain.AssessmentRequest{
		RequestID:   uuid.New().String(),
		MemberID:    chi.URLParam(r, "id"),
		BenefitType: req.BenefitType,
		AsOf:        asOf.Format(time.DateOnly),
		TraceID:     GetTraceID(ctx),
	}
	if err := bus.PublishJSON(ctx, h.bus, tenantID, domain.TopicAssessmentRequested, msg); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"requestId": msg.RequestID,
		"memberId":  msg.MemberID,
		"asOf":      msg.AsOf,
	})
}

// ListMemberAssessments returns a member's stored assessments, newest first.
func (h *Handler) ListMemberAssessments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	results, err := h.repo.ListAssessmentsByMember(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []*domain.Assessment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": results,
		"count":       len(results),
	})
}

// GetAssessment returns a stored assessment.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	result, err := h.repo.GetAssessment(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListMembers returns up to ?limit members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, domain.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	members, err := h.repo.ListMembers(ctx, GetTenantID(ctx), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if members == nil {
		members = []*domain.Member{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"members": members,
		"count":   len(members),
	})
}

func (h *Handler) invalidate(r *http.Request, memberID string) {
	if h.service != nil {
		h.service.Invalidate(r.Context(), GetTenantID(r.Context()), memberID)
	}
}

// audit records a state-changing request. Failures are logged only.
func (h *Handler) audit(r *http.Request, action, entityType, entityID string, details map[string]string) {
	if h.repo == nil {
		return
	}
	ctx := r.Context()
	record := &domain.AuditRecord{
		ID:         uuid.New().String(),
		TenantID:   GetTenantID(ctx),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      "api:" + GetRequestID(ctx),
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}
	if err := h.repo.SaveAuditRecord(ctx, record.TenantID, record); err != nil {
		slog.Error("failed to save audit record",
			"action", action,
			"entity_id", entityID,
			"error", err,
		)
	}
}
