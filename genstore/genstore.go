// Package genstore keeps per-key generation counters.
//
// A data source configured with a GenStore snapshots the generation of a
// cache key before fetching, and writes the fetched value only if the
// generation is unchanged. DeleteFromCache* bumps the generation, so an
// in-flight fetch that started before the delete cannot repopulate the cache
// with older data. Without a GenStore that race is allowed.
package genstore

import (
	"context"
	"time"
)

type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes entries not bumped within retention (no-op for Redis).
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
