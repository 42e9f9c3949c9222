package domain

import (
	"context"
	"time"
)

// Cache holds the inputs the calling layer fetches for the engine: member
// snapshots read through on assessment, and per-tenant request counters.
// Engine results are never cached. Every method is scoped by tenant.
type Cache interface {
	// GetMember returns a cached snapshot, or nil, nil on a miss.
	GetMember(ctx context.Context, tenantID, memberID string) (*MemberSnapshot, error)

	// SetMember caches a snapshot until ttl elapses or it is invalidated.
	SetMember(ctx context.Context, tenantID, memberID string, snapshot *MemberSnapshot, ttl time.Duration) error

	// InvalidateMember drops a snapshot after the member or their service
	// history changes.
	InvalidateMember(ctx context.Context, tenantID, memberID string) error

	// IncrementCounter adds one to a counter and returns the new value. The
	// counter resets window after its first increment.
	IncrementCounter(ctx context.Context, tenantID, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `env:"PENSION_CACHE_TYPE"`

	// In-process cache settings, also used as L1 in two-phase mode
	LocalMaxSize int           `env:"PENSION_CACHE_LOCAL_MAX_SIZE"`
	LocalTTL     time.Duration `env:"PENSION_CACHE_LOCAL_TTL"`

	// Member snapshot TTL
	MemberTTL time.Duration `env:"PENSION_CACHE_MEMBER_TTL"`

	// Redis settings (Pro tier)
	RedisAddr     string `env:"PENSION_REDIS_ADDR"`
	RedisPassword string `env:"PENSION_REDIS_PASSWORD"`
	RedisDB       int    `env:"PENSION_REDIS_DB"`

	// EnableTwoPhase keeps an in-process L1 in front of Redis. Invalidations
	// are broadcast so every node drops its L1 copy.
	EnableTwoPhase bool `env:"PENSION_CACHE_TWO_PHASE"`
}
