package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/opensource-finance/pensionrules/internal/assessment"
	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/rules"
	"github.com/shopspring/decimal"
)

// FactsRequest is a member fact snapshot supplied by the caller.
type FactsRequest struct {
	State              string          `json:"state"`
	BenefitType        string          `json:"benefitType"`
	Age                int             `json:"age"`
	TotalServiceYears  decimal.Decimal `json:"totalServiceYears"`
	FinalAverageSalary decimal.Decimal `json:"finalAverageSalary"`
	ContributionRate   decimal.Decimal `json:"contributionRate"`
}

// facts normalizes the request and looks up the state's rule set.
func (h *Handler) facts(req FactsRequest) (domain.MemberFacts, *domain.StateRuleSet, error) {
	state, err := domain.ParseStateCode(req.State)
	if err != nil {
		return domain.MemberFacts{}, nil, err
	}
	bt, err := domain.ParseBenefitType(req.BenefitType)
	if err != nil {
		return domain.MemberFacts{}, nil, err
	}
	rs, err := h.table.Lookup(state)
	if err != nil {
		return domain.MemberFacts{}, nil, err
	}
	return domain.MemberFacts{
		Age:                req.Age,
		TotalServiceYears:  req.TotalServiceYears,
		FinalAverageSalary: req.FinalAverageSalary,
		ContributionRate:   req.ContributionRate,
		State:              state,
		BenefitType:        bt,
	}, rs, nil
}

// ServiceEntryRequest is one service history entry. EndDate is omitted for
// ongoing service.
type ServiceEntryRequest struct {
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate,omitempty"`
	CreditedYears decimal.Decimal `json:"creditedYears"`
	Purchased     bool            `json:"purchased"`
}

func (e ServiceEntryRequest) toEntry(i int) (domain.ServiceHistoryEntry, error) {
	start, err := parseDate(fmt.Sprintf("entries[%d].startDate", i), e.StartDate)
	if err != nil {
		return domain.ServiceHistoryEntry{}, err
	}
	entry := domain.ServiceHistoryEntry{
		StartDate:     start,
		CreditedYears: e.CreditedYears,
		Purchased:     e.Purchased,
	}
	if e.EndDate != "" {
		end, err := parseDate(fmt.Sprintf("entries[%d].endDate", i), e.EndDate)
		if err != nil {
			return domain.ServiceHistoryEntry{}, err
		}
		entry.EndDate = &end
	}
	return entry, nil
}

func toEntries(reqs []ServiceEntryRequest) ([]domain.ServiceHistoryEntry, error) {
	entries := make([]domain.ServiceHistoryEntry, 0, len(reqs))
	for i, e := range reqs {
		entry, err := e.toEntry(i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ServiceCreditRequest is the body for POST /service-credit.
type ServiceCreditRequest struct {
	State   string                `json:"state"`
	AsOf    string                `json:"asOf,omitempty"`
	Entries []ServiceEntryRequest `json:"entries"`
}

// ServiceCredit resolves a service history into credited years.
func (h *Handler) ServiceCredit(w http.ResponseWriter, r *http.Request) {
	var req ServiceCreditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	state, err := domain.ParseStateCode(req.State)
	if err != nil {
		writeError(w, err)
		return
	}
	rs, err := h.table.Lookup(state)
	if err != nil {
		writeError(w, err)
		return
	}
	asOf, err := parseAsOf(req.AsOf)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := toEntries(req.Entries)
	if err != nil {
		writeError(w, err)
		return
	}

	credit, err := rules.ResolveServiceCreditDetail(entries, asOf, rs.MaxPurchasedServiceYears)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":         state,
		"asOf":          asOf.Format(time.DateOnly),
		"serviceCredit": credit,
	})
}

// Eligibility validates member facts.
func (h *Handler) Eligibility(w http.ResponseWriter, r *http.Request) {
	var req FactsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	facts, rs, err := h.facts(req)
	if err != nil {
		writeError(w, err)
		return
	}

	verdict, err := rules.Validate(facts, rs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// Benefit calculates the benefit for member facts. Ineligible members get
// an advisory result.
func (h *Handler) Benefit(w http.ResponseWriter, r *http.Request) {
	var req FactsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	facts, rs, err := h.facts(req)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := rules.Calculate(facts, rs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Readiness scores member facts.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	var req FactsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	facts, rs, err := h.facts(req)
	if err != nil {
		writeError(w, err)
		return
	}

	verdict, err := rules.Validate(facts, rs)
	if err != nil {
		writeError(w, err)
		return
	}
	score, err := rules.Score(facts, rs, verdict)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// AssessRequest is the body for POST /assess. TotalServiceYears, when set,
// replaces resolution of ServiceHistory.
type AssessRequest struct {
	MemberID             string                `json:"memberId,omitempty"`
	State                string                `json:"state"`
	BenefitType          string                `json:"benefitType"`
	Age                  int                   `json:"age"`
	TotalServiceYears    *decimal.Decimal      `json:"totalServiceYears,omitempty"`
	ServiceHistory       []ServiceEntryRequest `json:"serviceHistory,omitempty"`
	FinalAverageSalary   decimal.Decimal       `json:"finalAverageSalary"`
	ContributionRate     decimal.Decimal       `json:"contributionRate"`
	MedicalExamOnFile    bool                  `json:"medicalExamOnFile"`
	SpouseApprovalOnFile bool                  `json:"spouseApprovalOnFile"`
	AsOf                 string                `json:"asOf,omitempty"`
}

// Assess runs the full pipeline on caller-supplied facts. The condensed
// response is returned unless ?detail=true.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req AssessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	state, err := domain.ParseStateCode(req.State)
	if err != nil {
		writeError(w, err)
		return
	}
	asOf, err := parseAsOf(req.AsOf)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := toEntries(req.ServiceHistory)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.processor.Process(ctx, &assessment.Input{
		TenantID:           tenantID,
		MemberID:           req.MemberID,
		TraceID:            GetTraceID(ctx),
		State:              state,
		BenefitType:        domain.BenefitType(req.BenefitType),
		Age:                req.Age,
		FinalAverageSalary: req.FinalAverageSalary,
		ContributionRate:   req.ContributionRate,
		ServiceHistory:     history,
		ServiceYears:       req.TotalServiceYears,
		Documents: domain.PolicyContext{
			MedicalExamOnFile:    req.MedicalExamOnFile,
			SpouseApprovalOnFile: req.SpouseApprovalOnFile,
		},
		AsOf:      asOf,
		StartTime: start,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if h.service != nil {
		if err := h.service.Save(ctx, tenantID, result); err != nil {
			writeError(w, err)
			return
		}
	}

	h.writeAssessment(w, r, http.StatusOK, result)
}

func (h *Handler) writeAssessment(w http.ResponseWriter, r *http.Request, status int, result *domain.Assessment) {
	if r.URL.Query().Get("detail") == "true" {
		writeJSON(w, status, result)
		return
	}
	resp := result.ToResponse()
	resp.Reasons = assessment.GetReasons(result)
	writeJSON(w, status, resp)
}
