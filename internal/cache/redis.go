package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "pension:"

	// invalidationChannel carries "tenant/member" payloads so two-phase
	// nodes can drop their L1 copy.
	invalidationChannel = keyPrefix + "invalidate"
)

// incrWithTTL increments a counter and starts its window on first use.
var incrWithTTL = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache stores snapshots and counters in Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// GetMember reads a snapshot, returning nil when the key is absent.
func (c *RedisCache) GetMember(ctx context.Context, tenantID, memberID string) (*domain.MemberSnapshot, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	data, err := c.client.Get(ctx, memberRedisKey(tenantID, memberID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get member: %w", err)
	}
	return decodeSnapshot(data)
}

// SetMember writes a snapshot with ttl.
func (c *RedisCache) SetMember(ctx context.Context, tenantID, memberID string, snapshot *domain.MemberSnapshot, ttl time.Duration) error {
	if tenantID == "" {
		return ErrTenantRequired
	}

	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, memberRedisKey(tenantID, memberID), data, ttl).Err()
}

// InvalidateMember deletes the snapshot and broadcasts the invalidation in
// one round trip.
func (c *RedisCache) InvalidateMember(ctx context.Context, tenantID, memberID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, memberRedisKey(tenantID, memberID))
	pipe.Publish(ctx, invalidationChannel, tenantID+"/"+memberID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate member: %w", err)
	}
	return nil
}

// IncrementCounter runs INCR and sets the window expiry on the first hit.
func (c *RedisCache) IncrementCounter(ctx context.Context, tenantID, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}

	fullKey := keyPrefix + tenantID + ":counter:" + key
	return incrWithTTL.Run(ctx, c.client, []string{fullKey}, window.Milliseconds()).Int64()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// subscribeInvalidations delivers invalidated (tenant, member) pairs to fn
// until the returned subscription is closed.
func (c *RedisCache) subscribeInvalidations(ctx context.Context, fn func(tenantID, memberID string)) (*redis.PubSub, error) {
	sub := c.client.Subscribe(ctx, invalidationChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", invalidationChannel, err)
	}

	go func() {
		for msg := range sub.Channel() {
			tenantID, memberID, ok := strings.Cut(msg.Payload, "/")
			if !ok {
				continue
			}
			fn(tenantID, memberID)
		}
	}()
	return sub, nil
}

func memberRedisKey(tenantID, memberID string) string {
	return keyPrefix + tenantID + ":member:" + memberID
}
