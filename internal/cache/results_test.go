package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retinalabs/retina/internal/sim"
)

// fakeRedis is a map-backed stand-in for the Redis commands the cache uses.
type fakeRedis struct {
	data map[string][]byte
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	raw, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(raw), nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = value.([]byte)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func newTestCache(r *fakeRedis) *ResultCache {
	return &ResultCache{client: r, ttl: DefaultTTL}
}

func TestCacheRoundTrip(t *testing.T) {
	r := newFakeRedis()
	c := newTestCache(r)
	ctx := context.Background()

	env := Envelope{
		Results:     []sim.Result{{OptionID: "A", EV: 800, RAROC: 1.5}},
		Diagnostics: sim.Diagnostics{Fingerprint: "abc123def456"},
	}
	c.Put(ctx, "abc123def456", env)

	got := c.Get(ctx, "abc123def456")
	require.NotNil(t, got)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "A", got.Results[0].OptionID)
	assert.Equal(t, 800.0, got.Results[0].EV)
	assert.False(t, got.CachedAt.IsZero())

	stats := c.Snapshot()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(0), stats.Misses)
}

func TestCacheMiss(t *testing.T) {
	c := newTestCache(newFakeRedis())
	got := c.Get(context.Background(), "nope")
	assert.Nil(t, got)
	assert.Equal(t, uint64(1), c.Snapshot().Misses)
	assert.Equal(t, uint64(0), c.Snapshot().Errors)
}

func TestCacheRedisErrorDegradesToMiss(t *testing.T) {
	r := newFakeRedis()
	r.err = assert.AnError
	c := newTestCache(r)

	got := c.Get(context.Background(), "fp")
	assert.Nil(t, got)
	stats := c.Snapshot()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Errors)
}

func TestCacheCorruptPayloadDropped(t *testing.T) {
	r := newFakeRedis()
	c := newTestCache(r)
	r.data[key("fp")] = []byte("{not json")

	got := c.Get(context.Background(), "fp")
	assert.Nil(t, got)
	_, still := r.data[key("fp")]
	assert.False(t, still, "corrupt entry must be evicted")
}

func TestCacheInvalidate(t *testing.T) {
	r := newFakeRedis()
	c := newTestCache(r)
	ctx := context.Background()

	raw, err := json.Marshal(Envelope{})
	require.NoError(t, err)
	r.data[key("fp")] = raw

	c.Invalidate(ctx, "fp")
	assert.Nil(t, c.Get(ctx, "fp"))
}
