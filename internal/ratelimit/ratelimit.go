// Package ratelimit enforces per-tenant request quotas on top of the
// cache's atomic counters.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/pensionrules/internal/domain"
)

// Response headers set on every limited request.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "Retry-After"
)

const counterKey = "ratelimit:requests"

// Limiter counts requests per tenant in fixed windows.
type Limiter struct {
	cache  domain.Cache
	limit  int64
	window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Count     int64
	Limit     int64
	Remaining int64
}

// NewLimiter creates a limiter allowing limit requests per window.
func NewLimiter(cache domain.Cache, limit int, window time.Duration) (*Limiter, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{cache: cache, limit: int64(limit), window: window}, nil
}

// Allow counts one request for the tenant.
func (l *Limiter) Allow(ctx context.Context, tenantID string) (Decision, error) {
	if tenantID == "" {
		return Decision{}, fmt.Errorf("tenantID is required")
	}

	count, err := l.cache.IncrementCounter(ctx, tenantID, counterKey, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count request: %w", err)
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= l.limit,
		Count:     count,
		Limit:     l.limit,
		Remaining: remaining,
	}, nil
}

// Middleware rejects requests over the tenant's quota with 429. The tenant
// is read from the request context by tenantOf; requests without one pass
// through. Counter failures let the request through.
func (l *Limiter) Middleware(tenantOf func(context.Context) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := tenantOf(r.Context())
			if tenantID == "" {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := l.Allow(r.Context(), tenantID)
			if err != nil {
				slog.Warn("rate limit check failed",
					"tenant_id", tenantID,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(HeaderLimit, strconv.FormatInt(decision.Limit, 10))
			w.Header().Set(HeaderRemaining, strconv.FormatInt(decision.Remaining, 10))

			if !decision.Allowed {
				slog.Warn("rate limit exceeded",
					"tenant_id", tenantID,
					"count", decision.Count,
					"limit", decision.Limit,
				)
				w.Header().Set(HeaderReset, strconv.Itoa(int(l.window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded","code":"RATE_LIMITED"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
