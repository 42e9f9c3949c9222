package api

import (
	"net/http"

	"github.com/opensource-finance/pensionrules/internal/assessment"
	"github.com/opensource-finance/pensionrules/internal/cache"
	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/policy"
	"github.com/opensource-finance/pensionrules/internal/rules"
)

// Deps are the collaborators the API serves from. Repo, Cache, Bus and
// Source may be nil; endpoints needing them answer 503.
type Deps struct {
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Table    *rules.RuleTable
	Policies *policy.Engine
	Service  *assessment.Service
	Source   *rules.Source
	Version  string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	table     *rules.RuleTable
	policies  *policy.Engine
	processor *assessment.Processor
	service   *assessment.Service
	source    *rules.Source
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		table:    deps.Table,
		policies: deps.Policies,
		service:  deps.Service,
		source:   deps.Source,
		version:  deps.Version,
	}
	if deps.Service != nil {
		h.processor = deps.Service.Processor()
	} else {
		h.processor = assessment.NewProcessor(deps.Table, deps.Policies, 0)
	}
	return h
}

// Health reports the status of every backing service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}

	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("bus", func() error { return h.bus.Ping(ctx) })
	}

	body := map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	}
	if sc, ok := h.cache.(interface{ Stats() cache.Stats }); ok {
		body["cache"] = sc.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

// Ready reports whether rule sets are loaded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.table == nil || h.table.Len() == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready": false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":          true,
		"states":         h.table.Len(),
		"ruleSetVersion": h.table.Version(),
	})
}
