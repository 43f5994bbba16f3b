// Package analytics provides a fingerprinted TTL cache for expensive
// aggregate computations, persisted in the cache database so results
// survive restarts.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/chainsight/chainsight/internal/database"
)

// Cache stores msgpack-encoded computation results keyed by name. Each
// entry carries the dataset fingerprint it was computed from; a lookup
// with a different fingerprint is a miss, so stale results are never
// served after the dataset changes.
type Cache struct {
	db  *database.DB
	ttl time.Duration
	log zerolog.Logger
}

// NewCache creates a cache over the cache database.
func NewCache(db *database.DB, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "analytics-cache").Logger(),
	}
}

// Get loads the entry for key into out. Returns false on a miss, an
// expired entry, or a fingerprint mismatch. Decode failures are treated
// as misses and the corrupt entry is removed.
func (c *Cache) Get(ctx context.Context, key, fingerprint string, out any) (bool, error) {
	var payload []byte
	var storedFP string
	var expiresAt int64

	err := c.db.QueryRowContext(ctx,
		"SELECT payload, fingerprint, expires_at FROM analytics_cache WHERE cache_key = ?",
		key,
	).Scan(&payload, &storedFP, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry %q: %w", key, err)
	}

	if time.Now().Unix() >= expiresAt || storedFP != fingerprint {
		return false, nil
	}

	if err := msgpack.Unmarshal(payload, out); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
		_, _ = c.db.ExecContext(ctx, "DELETE FROM analytics_cache WHERE cache_key = ?", key)
		return false, nil
	}
	return true, nil
}

// Put stores value under key with the cache's TTL, replacing any
// previous entry.
func (c *Cache) Put(ctx context.Context, key, fingerprint string, value any) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %q: %w", key, err)
	}

	expiresAt := time.Now().Add(c.ttl).Unix()
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO analytics_cache (cache_key, payload, fingerprint, expires_at)
		 VALUES (?, ?, ?, ?)`,
		key, payload, fingerprint, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry %q: %w", key, err)
	}
	return nil
}

// Invalidate removes one entry.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM analytics_cache WHERE cache_key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache entry %q: %w", key, err)
	}
	return nil
}

// PurgeExpired deletes entries past their TTL and returns how many were
// removed.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		"DELETE FROM analytics_cache WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	if n > 0 {
		c.log.Debug().Int64("purged", n).Msg("Purged expired cache entries")
	}
	return n, nil
}
