// Package cache stores computed analytics responses for a short time so that
// repeated dashboard loads within the TTL do not re-run the aggregations.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Store is a byte-oriented key/value store with per-entry expiry. A miss is
// reported as (nil, false, nil); errors are reserved for backend failures.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds the cache key of one report for one clinic and period token.
func Key(domain, clinicID, period string) string {
	return fmt.Sprintf("%s:%s:%s", domain, clinicID, period)
}

// Loader computes a value when the cache has none.
type Loader func(ctx context.Context) (interface{}, error)

// FetchJSON is a read-through lookup. On a hit the stored bytes are decoded
// into dst and returned unchanged, so two hits observe identical payloads. On
// a miss the loader runs, its result is encoded, stored for ttl and decoded
// into dst. Backend failures are logged and treated as a miss.
func FetchJSON(ctx context.Context, store Store, key string, ttl time.Duration, dst interface{}, load Loader) ([]byte, error) {
	log := zerolog.Ctx(ctx)

	if store != nil {
		raw, ok, err := store.Get(ctx, key)
		switch {
		case err != nil:
			cacheErrors.WithLabelValues("get").Inc()
			log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		case ok:
			if err := json.Unmarshal(raw, dst); err == nil {
				cacheHits.WithLabelValues(domainOf(key)).Inc()
				return raw, nil
			}
			log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
		}
	}
	cacheMisses.WithLabelValues(domainOf(key)).Inc()

	value, err := load(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	if store != nil && ttl > 0 {
		if err := store.Set(ctx, key, raw, ttl); err != nil {
			cacheErrors.WithLabelValues("set").Inc()
			log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return raw, nil
}

func domainOf(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}
