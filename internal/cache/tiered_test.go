package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newSharedCache(t *testing.T) (*TieredCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	shared := NewRedisLevelFromClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	tc := NewTieredCache(shared, 100, testLogger())
	t.Cleanup(func() { _ = tc.Close() })
	return tc, srv
}

func TestTieredCache_SetAndGet(t *testing.T) {
	tc, _ := newSharedCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "memory:abc", map[string]string{"id": "abc"}, time.Minute))

	var got map[string]string
	hit, err := tc.Get(ctx, "memory:abc", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "abc", got["id"])

	metrics := tc.Metrics()
	assert.Equal(t, int64(1), metrics.Sets)
	assert.Equal(t, int64(1), metrics.SharedHits)
}

func TestTieredCache_GetMiss(t *testing.T) {
	tc, _ := newSharedCache(t)

	var got string
	hit, err := tc.Get(context.Background(), "nope", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(1), tc.Metrics().Misses)
}

func TestTieredCache_LocalFallbackWhenSharedDown(t *testing.T) {
	tc, srv := newSharedCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "memory:abc", "value", time.Minute))

	// Kill the shared level; the local copy written alongside must serve.
	srv.Close()

	var got string
	hit, err := tc.Get(ctx, "memory:abc", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "value", got)

	metrics := tc.Metrics()
	assert.Equal(t, int64(1), metrics.LocalHits)
	assert.GreaterOrEqual(t, metrics.SharedErrors, int64(1))
}

func TestTieredCache_SetSurvivesSharedFailure(t *testing.T) {
	tc, srv := newSharedCache(t)
	ctx := context.Background()
	srv.Close()

	// Shared write fails silently, local write still lands.
	require.NoError(t, tc.Set(ctx, "k", 42, time.Minute))

	var got int
	hit, err := tc.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, got)
}

func TestTieredCache_Delete(t *testing.T) {
	tc, srv := newSharedCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "memory:abc", "value", time.Minute))
	tc.Delete(ctx, "memory:abc")

	var got string
	hit, err := tc.Get(ctx, "memory:abc", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, srv.Exists("memory:abc"))
}

func TestTieredCache_InvalidatePattern(t *testing.T) {
	tc, srv := newSharedCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "list:all", "a", time.Minute))
	require.NoError(t, tc.Set(ctx, "list:type=note", "b", time.Minute))
	require.NoError(t, tc.Set(ctx, "search:milk", "c", time.Minute))

	removed, err := tc.InvalidatePattern(ctx, "list:*")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	var got string
	hit, err := tc.Get(ctx, "list:all", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = tc.Get(ctx, "list:type=note", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	// search: entries are untouched by a list:* invalidation.
	hit, err = tc.Get(ctx, "search:milk", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "c", got)

	assert.False(t, srv.Exists("list:all"))
	assert.True(t, srv.Exists("search:milk"))
}

func TestTieredCache_InvalidatePatternQuestionMark(t *testing.T) {
	tc, _ := newSharedCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "k1", "a", time.Minute))
	require.NoError(t, tc.Set(ctx, "k2", "b", time.Minute))
	require.NoError(t, tc.Set(ctx, "k10", "c", time.Minute))

	removed, err := tc.InvalidatePattern(ctx, "k?")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	var got string
	hit, err := tc.Get(ctx, "k10", &got)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestTieredCache_InvalidatePatternLocalOnlyWhenSharedDown(t *testing.T) {
	tc, srv := newSharedCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "list:all", "a", time.Minute))
	srv.Close()

	// Local eviction must stay correct with the shared level unreachable.
	removed, err := tc.InvalidatePattern(ctx, "list:*")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	var got string
	hit, err := tc.Get(ctx, "list:all", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestTieredCache_InvalidatePatternBadGlob(t *testing.T) {
	tc, _ := newSharedCache(t)

	_, err := tc.InvalidatePattern(context.Background(), "[")
	assert.Error(t, err)
}

func TestTieredCache_NoSharedLevel(t *testing.T) {
	tc := NewTieredCache(nil, 10, testLogger())
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "k", "v", time.Minute))

	var got string
	hit, err := tc.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "v", got)
}

func TestTieredCache_SharedExpiry(t *testing.T) {
	tc, srv := newSharedCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "k", "v", time.Second))
	srv.FastForward(2 * time.Second)

	// Shared entry expired; local entry has the same TTL and real time has
	// not advanced, so the local level still serves it.
	var got string
	hit, err := tc.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestLocalLevel_Expiration(t *testing.T) {
	local := NewLocalLevel(10)
	local.Set("k", []byte(`"v"`), 10*time.Millisecond)

	_, hit := local.Get("k")
	assert.True(t, hit)

	time.Sleep(20 * time.Millisecond)
	_, hit = local.Get("k")
	assert.False(t, hit)
	assert.Equal(t, 0, local.Len())
}

func TestLocalLevel_EvictsOldestInserted(t *testing.T) {
	local := NewLocalLevel(3)
	local.Set("a", []byte("1"), time.Minute)
	local.Set("b", []byte("2"), time.Minute)
	local.Set("c", []byte("3"), time.Minute)
	local.Set("d", []byte("4"), time.Minute)

	_, hit := local.Get("a")
	assert.False(t, hit, "oldest-inserted entry must be evicted first")
	for _, key := range []string{"b", "c", "d"} {
		_, hit := local.Get(key)
		assert.True(t, hit, "key %s", key)
	}
}

func TestLocalLevel_ResetMovesToBack(t *testing.T) {
	local := NewLocalLevel(2)
	local.Set("a", []byte("1"), time.Minute)
	local.Set("b", []byte("2"), time.Minute)

	// Re-setting "a" counts as a fresh insertion, so "b" becomes oldest.
	local.Set("a", []byte("1b"), time.Minute)
	local.Set("c", []byte("3"), time.Minute)

	_, hit := local.Get("b")
	assert.False(t, hit)
	data, hit := local.Get("a")
	assert.True(t, hit)
	assert.Equal(t, []byte("1b"), data)
}

func TestMetrics_HitRate(t *testing.T) {
	tc := NewTieredCache(nil, 10, testLogger())
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "k", "v", time.Minute))

	var got string
	_, _ = tc.Get(ctx, "k", &got)
	_, _ = tc.Get(ctx, "missing", &got)

	m := tc.Metrics()
	assert.InDelta(t, 0.5, m.HitRate(), 1e-9)
}
