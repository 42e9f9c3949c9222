package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/pensionrules/internal/bus"
	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/rules"
)

// ListStates returns every loaded rule set.
func (h *Handler) ListStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  h.table.Version(),
		"ruleSets": h.table.RuleSets(),
		"count":    h.table.Len(),
	})
}

// StatesSummary compares contribution terms across loaded states.
func (h *Handler) StatesSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rules.SummarizeStates(h.table.RuleSets()))
}

// GetState returns one state's rule set with its benefit strategies.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := domain.ParseStateCode(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	rs, err := h.table.Lookup(state)
	if err != nil {
		writeNotFound(w, "state "+string(state))
		return
	}

	strategies := make(map[domain.BenefitType]domain.BenefitRule, len(domain.BenefitTypes))
	for _, bt := range domain.BenefitTypes {
		strategy, err := h.table.Strategy(state, bt)
		if err != nil {
			writeError(w, err)
			return
		}
		strategies[bt] = strategy
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ruleSet":    rs,
		"strategies": strategies,
		"version":    h.table.Version(),
	})
}

// RuleSetRequest is the body for PUT /states/{code}.
type RuleSetRequest struct {
	Version string              `json:"version"`
	RuleSet domain.StateRuleSet `json:"ruleSet"`
}

// PutState persists a rule set for the rules tenant and reloads the table.
// An invalid rule set is rejected before anything is stored.
func (h *Handler) PutState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil || h.source == nil || !h.source.Persistent() {
		writeUnavailable(w, "rule persistence")
		return
	}

	state, err := domain.ParseStateCode(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req RuleSetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rs := req.RuleSet
	rs.State = domain.StateCode(strings.ToUpper(strings.TrimSpace(string(rs.State))))
	if rs.State == "" {
		rs.State = state
	}
	if rs.State != state {
		writeError(w, domain.NewValidationError("ruleSet.state", fmt.Sprintf("%s does not match path state %s", rs.State, state)))
		return
	}
	if err := rs.Validate(); err != nil {
		writeError(w, err)
		return
	}

	record := &domain.RuleSetRecord{RuleSet: &rs, Version: req.Version}
	if err := h.repo.SaveStateRuleSet(ctx, h.source.TenantID(), record); err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, domain.AuditRuleSetSaved, "ruleset", string(state), map[string]string{
		"version": req.Version,
	})

	snap, err := h.reload(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ruleSet": rs,
		"version": snap.Version,
	})
}

// ReloadRules reloads rule sets and policies from the rule source.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeUnavailable(w, "rule source")
		return
	}

	snap, err := h.reload(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, domain.AuditRulesReloaded, "ruleset", snap.Version, map[string]string{
		"states":   fmt.Sprint(len(snap.RuleSets)),
		"policies": fmt.Sprint(len(snap.Policies)),
	})

	policies := 0
	if h.policies != nil {
		policies = h.policies.RulesCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  snap.Version,
		"states":   h.table.States(),
		"policies": policies,
	})
}

// reload swaps in the current rule source and announces the new version.
// The table and policy engine each keep their previous contents on error.
func (h *Handler) reload(ctx context.Context) (*rules.Snapshot, error) {
	snap, err := h.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.table.Reload(snap.RuleSets, snap.Version); err != nil {
		return nil, err
	}
	if h.policies != nil {
		if err := h.policies.ReloadRules(snap.Policies); err != nil {
			return nil, domain.NewConfigurationError("", "policies", err.Error())
		}
	}

	if h.bus != nil {
		event := domain.RulesReloadedEvent{
			Version:  snap.Version,
			States:   h.table.States(),
			Policies: len(snap.Policies),
		}
		if err := bus.PublishJSON(ctx, h.bus, h.source.TenantID(), domain.TopicRulesReloaded, event); err != nil {
			slog.Warn("failed to publish rules reload", "error", err)
		}
	}

	slog.Info("rules reloaded",
		"version", snap.Version,
		"states", len(snap.RuleSets),
		"policies", len(snap.Policies),
	)
	return snap, nil
}

// ListPolicies returns the loaded compliance policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	if h.policies == nil {
		writeUnavailable(w, "policy engine")
		return
	}
	loaded := h.policies.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"policies": loaded,
		"count":    len(loaded),
	})
}

// CreatePolicy validates and persists a compliance policy, then reloads.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil || h.source == nil || !h.source.Persistent() || h.policies == nil {
		writeUnavailable(w, "rule persistence")
		return
	}

	var rule domain.PolicyRule
	if err := decodeJSON(r, &rule); err != nil {
		writeError(w, err)
		return
	}
	if rule.ID == "" {
		writeError(w, domain.NewValidationError("id", "is required"))
		return
	}
	rule.Severity = strings.ToUpper(rule.Severity)
	if rule.Severity == "" {
		rule.Severity = domain.SeverityWarning
	}
	if rule.Severity != domain.SeverityWarning && rule.Severity != domain.SeverityCritical {
		writeError(w, domain.NewValidationError("severity", "must be WARNING or CRITICAL"))
		return
	}
	if rule.State != "" {
		state, err := domain.ParseStateCode(string(rule.State))
		if err != nil {
			writeError(w, err)
			return
		}
		rule.State = state
	}
	if err := h.policies.ValidateRule(&rule); err != nil {
		writeError(w, domain.NewValidationError("expression", err.Error()))
		return
	}

	rule.TenantID = h.source.TenantID()
	if err := h.repo.SavePolicyRule(ctx, rule.TenantID, &rule); err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, domain.AuditPolicySaved, "policy", rule.ID, map[string]string{
		"severity": rule.Severity,
		"enabled":  fmt.Sprint(rule.Enabled),
	})

	if _, err := h.reload(ctx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// ListAudit returns audit records for the tenant since ?since (YYYY-MM-DD).
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := parseDate("since", v)
		if err != nil {
			writeError(w, err)
			return
		}
		since = t
	}

	records, err := h.repo.ListAuditRecords(ctx, GetTenantID(ctx), since)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []*domain.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}
