// Package cache provides member snapshot and counter caches.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/opensource-finance/pensionrules/internal/domain"
)

// ErrTenantRequired is returned for any call without a tenant.
var ErrTenantRequired = errors.New("tenantID is required")

const defaultMaxSize = 10000

// memberKey identifies a snapshot. Tenants never share entries.
type memberKey struct {
	tenantID string
	memberID string
}

type counterKey struct {
	tenantID string
	key      string
}

type counter struct {
	count     int64
	expiresAt time.Time
}

// Stats describes cache effectiveness.
type Stats struct {
	Size      int   `json:"size"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Counters  int   `json:"counters"`
}

// MemoryCache keeps member snapshots in a bounded LRU. Snapshots are stored
// encoded so callers never share a value with the cache.
// Used as the Community tier cache and as L1 in two-phase caching.
type MemoryCache struct {
	mu       sync.Mutex
	members  *lru[memberKey, []byte]
	counters map[counterKey]*counter
	hits     int64
	misses   int64
	now      func() time.Time
}

// NewMemoryCache creates a cache holding at most maxSize snapshots.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &MemoryCache{
		members:  newLRU[memberKey, []byte](maxSize),
		counters: make(map[counterKey]*counter),
		now:      time.Now,
	}
}

// GetMember returns a cached snapshot, or nil on a miss.
func (c *MemoryCache) GetMember(ctx context.Context, tenantID, memberID string) (*domain.MemberSnapshot, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	c.mu.Lock()
	data, ok := c.members.get(memberKey{tenantID, memberID}, c.now())
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return decodeSnapshot(data)
}

// SetMember caches a snapshot for ttl.
func (c *MemoryCache) SetMember(ctx context.Context, tenantID, memberID string, snapshot *domain.MemberSnapshot, ttl time.Duration) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.members.put(memberKey{tenantID, memberID}, data, c.now(), ttl)
	c.mu.Unlock()
	return nil
}

// InvalidateMember drops a cached snapshot.
func (c *MemoryCache) InvalidateMember(ctx context.Context, tenantID, memberID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}

	c.mu.Lock()
	c.members.delete(memberKey{tenantID, memberID})
	c.mu.Unlock()
	return nil
}

// IncrementCounter counts within a window that starts at the first
// increment. Expired windows of other counters are pruned as new windows
// open, so idle tenants do not accumulate.
func (c *MemoryCache) IncrementCounter(ctx context.Context, tenantID, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	k := counterKey{tenantID, key}
	if ctr, ok := c.counters[k]; ok && now.Before(ctr.expiresAt) {
		ctr.count++
		return ctr.count, nil
	}

	for other, ctr := range c.counters {
		if !now.Before(ctr.expiresAt) {
			delete(c.counters, other)
		}
	}
	c.counters[k] = &counter{count: 1, expiresAt: now.Add(window)}
	return 1, nil
}

// Ping always succeeds.
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members.reset()
	c.counters = make(map[counterKey]*counter)
	return nil
}

// Stats returns a point-in-time view of the cache.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.members.len(),
		Capacity:  c.members.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.members.evictions,
		Counters:  len(c.counters),
	}
}
