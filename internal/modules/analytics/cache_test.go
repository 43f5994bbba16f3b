package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight/chainsight/internal/database"
)

type cachedReport struct {
	Name  string  `msgpack:"name"`
	Total float64 `msgpack:"total"`
}

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return NewCache(db, ttl, zerolog.Nop())
}

func TestCacheRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()

	in := cachedReport{Name: "inventory", Total: 1234.5}
	require.NoError(t, c.Put(ctx, "inventory", "fp-1", in))

	var out cachedReport
	hit, err := c.Get(ctx, "inventory", "fp-1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, in, out)
}

func TestCacheMissOnUnknownKey(t *testing.T) {
	c := newTestCache(t, time.Minute)

	var out cachedReport
	hit, err := c.Get(context.Background(), "nothing", "fp-1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheMissOnFingerprintChange(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "suppliers", "fp-1", cachedReport{Name: "suppliers"}))

	var out cachedReport
	hit, err := c.Get(ctx, "suppliers", "fp-2", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheExpiry(t *testing.T) {
	c := newTestCache(t, -time.Second)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "kpis", "fp-1", cachedReport{Name: "kpis"}))

	var out cachedReport
	hit, err := c.Get(ctx, "kpis", "fp-1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	purged, err := c.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}

func TestCacheReplaceAndInvalidate(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "kpis", "fp-1", cachedReport{Total: 1}))
	require.NoError(t, c.Put(ctx, "kpis", "fp-1", cachedReport{Total: 2}))

	var out cachedReport
	hit, err := c.Get(ctx, "kpis", "fp-1", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 2.0, out.Total)

	require.NoError(t, c.Invalidate(ctx, "kpis"))
	hit, err = c.Get(ctx, "kpis", "fp-1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}
