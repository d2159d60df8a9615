package docsource

import "time"

// Hooks are callbacks for cache and batch events, the channel through which
// swallowed cache failures are surfaced. Implementations MUST be cheap and
// non-blocking; wrap slow sinks with hooks/async.
type Hooks interface {
	// kind ∈ {"id", "fields"}
	CacheHit(collection, kind string)
	CacheMiss(collection, kind string)

	// A cache operation failed and was treated as a miss or no-op.
	// op ∈ {"get", "set", "del", "bump", "encode"}
	CacheError(op, key string, err error)

	// An entry was deleted on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(key, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(key string)

	// A write was dropped because the key was deleted while its fetch was in
	// flight. Only fires with a GenStore configured.
	StaleWriteSkipped(key string)

	// A batched identifier fetch resolved.
	BatchDispatched(collection string, keys int, err error, took time.Duration)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheHit(string, string)                           {}
func (NopHooks) CacheMiss(string, string)                          {}
func (NopHooks) CacheError(string, string, error)                  {}
func (NopHooks) SelfHeal(string, string)                           {}
func (NopHooks) ProviderSetRejected(string)                        {}
func (NopHooks) StaleWriteSkipped(string)                          {}
func (NopHooks) BatchDispatched(string, int, error, time.Duration) {}
