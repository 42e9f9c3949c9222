package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/ratelimit"
)

// Server is the pension rules HTTP API.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer wires the handler into a chi router. Health probes are open;
// every other route needs a tenant and counts against the tenant's rate
// limit when one is configured.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	h := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(
		CORSMiddleware,
		RecoverMiddleware,
		TracingMiddleware,
		LoggingMiddleware,
		middleware.RealIP,
		middleware.Compress(5),
	)

	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)
		if limiter := newLimiter(cfg, deps.Cache); limiter != nil {
			r.Use(limiter.Middleware(GetTenantID))
		}

		// Stateless engine operations on caller-supplied facts
		r.Post("/service-credit", h.ServiceCredit)
		r.Post("/eligibility", h.Eligibility)
		r.Post("/benefit", h.Benefit)
		r.Post("/readiness", h.Readiness)
		r.Post("/assess", h.Assess)

		r.Route("/states", func(r chi.Router) {
			r.Get("/", h.ListStates)
			r.Get("/summary", h.StatesSummary)
			r.Post("/reload", h.ReloadRules)
			r.Get("/{code}", h.GetState)
			r.Put("/{code}", h.PutState)
		})

		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetMember)
				r.Post("/service", h.AddServiceEntry)
				r.Post("/assess", h.AssessMember)
				r.Post("/assess/async", h.AssessMemberAsync)
				r.Get("/assessments", h.ListMemberAssessments)
			})
		})
		r.Get("/assessments/{id}", h.GetAssessment)

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Post("/reload", h.ReloadRules)
		})

		r.Get("/audit", h.ListAudit)
	})

	return &Server{
		router:  router,
		handler: h,
		config:  cfg,
	}
}

// newLimiter returns nil when rate limiting is off or there is no cache to
// count in.
func newLimiter(cfg domain.ServerConfig, cache domain.Cache) *ratelimit.Limiter {
	if cfg.RateLimitPerMinute <= 0 || cache == nil {
		return nil
	}
	limiter, err := ratelimit.NewLimiter(cache, cfg.RateLimitPerMinute, time.Minute)
	if err != nil {
		slog.Warn("rate limiting disabled", "error", err)
		return nil
	}
	return limiter
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port)),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the router to tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler exposes the handler to tests.
func (s *Server) Handler() *Handler {
	return s.handler
}
