package docsource

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/docsource/codec"
	gen "github.com/unkn0wn-root/docsource/genstore"
	pr "github.com/unkn0wn-root/docsource/provider"
)

// FieldSet maps field paths (dotted for nested documents) to expected values.
type FieldSet map[string]any

// Config is passed to Initialize once per request. The zero value is valid:
// every field has a default.
type Config struct {
	// Context scopes batched fetches. A batch outlives the lookup that opened
	// it, so fetches run with this context rather than a caller's.
	Context context.Context // nil => context.Background()

	// Models are additional handles reachable through DataSource.Model.
	Models map[string]any

	// Cache is the cross-request key-value store. nil => an in-process
	// memory provider owned (and closed) by the data source.
	Cache pr.Provider
	Codec c.Codec[Record] // nil => codec.BSON

	// TTL applies to every cache write unless a lookup overrides it.
	// 0 => no expiry.
	TTL time.Duration

	// KeyPrefix is prepended to the collection name in every cache key,
	// e.g. "app:prod:".
	KeyPrefix string

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	// GenStore makes DeleteFromCache* fence fetches already in flight.
	// nil => deletes may be followed by a repopulating in-flight write.
	GenStore gen.GenStore

	BatchWait time.Duration // 0 => batch.DefaultWait
	MaxBatch  int           // 0 => unbounded

	ComputeSetCost SetCostFunc // nil => 1 per write
	DisableCache   bool
}

type lookupOptions struct {
	ttl    time.Duration
	hasTTL bool
}

type LookupOption func(*lookupOptions)

// WithTTL overrides Config.TTL for the cache write of one lookup.
func WithTTL(ttl time.Duration) LookupOption {
	return func(o *lookupOptions) {
		o.ttl = ttl
		o.hasTTL = true
	}
}

func (st *state) ttlFor(opts []LookupOption) time.Duration {
	var o lookupOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.hasTTL {
		return o.ttl
	}
	return st.ttl
}
