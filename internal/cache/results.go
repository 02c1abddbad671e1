// Package cache keeps simulation result sets in Redis keyed by run
// fingerprint. Identical inputs produce identical fingerprints, so a hit
// returns the exact result set a fresh run would recompute.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/retinalabs/retina/internal/recommend"
	"github.com/retinalabs/retina/internal/sim"
)

// DefaultTTL bounds staleness of cached result sets.
const DefaultTTL = 15 * time.Minute

const keyPrefix = "retina:sim:"

// redisClient is the slice of the go-redis API the cache needs; satisfied
// by *redis.Client and replaceable in tests.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Envelope is the cached payload for one fingerprint.
type Envelope struct {
	Results        []sim.Result              `json:"results"`
	Diagnostics    sim.Diagnostics           `json:"diagnostics"`
	Recommendation *recommend.Recommendation `json:"recommendation,omitempty"`
	CachedAt       time.Time                 `json:"cachedAt"`
}

// Stats are monotonic cache counters.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

// ResultCache is a fingerprint-keyed result cache. Redis errors degrade
// to misses; the simulation path never fails because the cache did.
type ResultCache struct {
	client redisClient
	ttl    time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
	errs   atomic.Uint64
}

// New creates a result cache on an established Redis client.
func New(client *redis.Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{client: client, ttl: ttl}
}

// Get returns the cached envelope for a fingerprint, or nil on miss.
func (c *ResultCache) Get(ctx context.Context, fingerprint string) *Envelope {
	raw, err := c.client.Get(ctx, key(fingerprint)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.errs.Add(1)
			log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("result cache read failed")
		}
		c.misses.Add(1)
		return nil
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.errs.Add(1)
		log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("result cache payload corrupt, dropping")
		c.client.Del(ctx, key(fingerprint))
		c.misses.Add(1)
		return nil
	}
	c.hits.Add(1)
	return &env
}

// Put stores an envelope under its fingerprint with the cache TTL.
func (c *ResultCache) Put(ctx context.Context, fingerprint string, env Envelope) {
	env.CachedAt = time.Now().UTC()
	raw, err := json.Marshal(env)
	if err != nil {
		c.errs.Add(1)
		log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("result cache marshal failed")
		return
	}
	if err := c.client.Set(ctx, key(fingerprint), raw, c.ttl).Err(); err != nil {
		c.errs.Add(1)
		log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("result cache write failed")
	}
}

// Invalidate drops a fingerprint's entry.
func (c *ResultCache) Invalidate(ctx context.Context, fingerprint string) {
	if err := c.client.Del(ctx, key(fingerprint)).Err(); err != nil {
		c.errs.Add(1)
		log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("result cache invalidate failed")
	}
}

// Snapshot returns current counters.
func (c *ResultCache) Snapshot() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errs.Load(),
	}
}

func key(fingerprint string) string {
	return fmt.Sprintf("%s%s", keyPrefix, fingerprint)
}
