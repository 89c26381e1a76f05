// Package dedup provides re-notify cooldown gates keyed by site and normalized size.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// MemoryCooldown keeps the last notification time per (site, size) in process memory
type MemoryCooldown struct {
	ttl  time.Duration
	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemoryCooldown creates an in-memory gate
func NewMemoryCooldown(ttl time.Duration) *MemoryCooldown {
	return &MemoryCooldown{
		ttl:  ttl,
		last: make(map[string]time.Time),
	}
}

// Allow reports whether ttl has passed since the last allowed notification, recording now when it has
func (c *MemoryCooldown) Allow(_ context.Context, site, size string, now time.Time) (bool, error) {
	key := cooldownKey(site, size)

	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[key]; ok && now.Sub(last) < c.ttl {
		return false, nil
	}
	c.last[key] = now
	return true, nil
}

// RedisCooldown shares cooldowns between monitor instances through SET NX with a TTL
type RedisCooldown struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisCooldown creates a gate on an existing client
func NewRedisCooldown(rdb redis.UniversalClient, ttl time.Duration, prefix string) *RedisCooldown {
	return &RedisCooldown{rdb: rdb, ttl: ttl, prefix: prefix}
}

// Allow claims the (site, size) key for ttl. Expiry is driven by the redis server clock.
func (c *RedisCooldown) Allow(ctx context.Context, site, size string, _ time.Time) (bool, error) {
	key := c.prefix + cooldownKey(site, size)
	ok, err := c.rdb.SetNX(ctx, key, time.Now().Unix(), c.ttl).Result()
	if err != nil {
		return false, common.WrapErrorf(err, "failed to claim cooldown key '%s'", key)
	}
	return ok, nil
}

// Close releases the redis client
func (c *RedisCooldown) Close() error {
	return c.rdb.Close()
}

func cooldownKey(site, size string) string {
	return site + "|" + size
}

// Gate is the cooldown contract shared by the memory and redis implementations
type Gate interface {
	Allow(ctx context.Context, site, size string, now time.Time) (bool, error)
}

// FromConfig builds the gate described by cfg. It returns nil when the cooldown is disabled.
// The returned close function is never nil.
func FromConfig(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (Gate, func() error, error) {
	noop := func() error { return nil }
	ttl := cfg.Engine.RenotifyCooldown()
	if ttl <= 0 {
		return nil, noop, nil
	}

	log := logger.With().Str("component", "Cooldown").Logger()
	if cfg.Redis.Addr == "" {
		log.Info().Dur("ttl", ttl).Msg("Using in-memory re-notify cooldown")
		return NewMemoryCooldown(ttl), noop, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, noop, common.WrapErrorf(err, "failed to connect to redis at '%s'", cfg.Redis.Addr)
	}

	log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", ttl).Msg("Using redis re-notify cooldown")
	gate := NewRedisCooldown(rdb, ttl, cfg.Redis.KeyPrefix)
	return gate, gate.Close, nil
}
