package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/redis/go-redis/v9"
)

// New creates the cache for the configured tier.
//   - memory: in-process MemoryCache (Community)
//   - redis: RedisCache, or TwoPhaseCache when two-phase is enabled (Pro)
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache reads snapshots from an in-process L1 before Redis. Every
// node subscribes to invalidations so a member changed through one node is
// not served stale from another node's L1.
type TwoPhaseCache struct {
	local  *MemoryCache
	remote *RedisCache
	sub    *redis.PubSub
	l1TTL  time.Duration
}

// NewTwoPhaseCache connects to Redis and starts listening for invalidations.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}

	c := &TwoPhaseCache{
		local:  NewMemoryCache(cfg.LocalMaxSize),
		remote: remote,
		l1TTL:  cfg.LocalTTL,
	}
	if c.l1TTL <= 0 {
		c.l1TTL = time.Minute
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.sub, err = remote.subscribeInvalidations(ctx, c.dropLocal)
	if err != nil {
		_ = remote.Close()
		return nil, err
	}
	return c, nil
}

func (c *TwoPhaseCache) dropLocal(tenantID, memberID string) {
	if err := c.local.InvalidateMember(context.Background(), tenantID, memberID); err != nil {
		slog.Warn("L1 invalidation failed", "tenant_id", tenantID, "member_id", memberID, "error", err)
	}
}

// GetMember reads L1, then L2, filling L1 on an L2 hit.
func (c *TwoPhaseCache) GetMember(ctx context.Context, tenantID, memberID string) (*domain.MemberSnapshot, error) {
	snapshot, err := c.local.GetMember(ctx, tenantID, memberID)
	if err != nil || snapshot != nil {
		return snapshot, err
	}

	snapshot, err = c.remote.GetMember(ctx, tenantID, memberID)
	if err != nil || snapshot == nil {
		return nil, err
	}
	_ = c.local.SetMember(ctx, tenantID, memberID, snapshot, c.l1TTL)
	return snapshot, nil
}

// SetMember writes L2 with the full ttl and L1 with at most the L1 TTL.
func (c *TwoPhaseCache) SetMember(ctx context.Context, tenantID, memberID string, snapshot *domain.MemberSnapshot, ttl time.Duration) error {
	if err := c.remote.SetMember(ctx, tenantID, memberID, snapshot, ttl); err != nil {
		return err
	}
	return c.local.SetMember(ctx, tenantID, memberID, snapshot, min(ttl, c.l1TTL))
}

// InvalidateMember clears both levels. Other nodes clear their L1 when the
// broadcast arrives.
func (c *TwoPhaseCache) InvalidateMember(ctx context.Context, tenantID, memberID string) error {
	if err := c.local.InvalidateMember(ctx, tenantID, memberID); err != nil {
		return err
	}
	return c.remote.InvalidateMember(ctx, tenantID, memberID)
}

// IncrementCounter always counts in Redis so limits hold across nodes.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, tenantID, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, tenantID, key, window)
}

// Ping checks Redis. L1 is always available.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close stops the invalidation listener and closes both levels.
func (c *TwoPhaseCache) Close() error {
	_ = c.sub.Close()
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 statistics.
func (c *TwoPhaseCache) Stats() Stats {
	return c.local.Stats()
}
