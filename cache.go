package docsource

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/docsource/codec"
	gen "github.com/unkn0wn-root/docsource/genstore"
	"github.com/unkn0wn-root/docsource/internal/wire"
	pr "github.com/unkn0wn-root/docsource/provider"
)

// SetCostFunc sizes a cache write for cost-aware providers (ristretto).
// n is 1 for identifier entries and the result length for field-set entries.
type SetCostFunc func(key string, raw []byte, isList bool, n int) int64

// recordCache frames records with the wire format and talks to the provider.
// Every failure is logged, reported through hooks and swallowed: a broken
// cache degrades to misses, never to failed lookups.
type recordCache struct {
	provider pr.Provider
	codec    c.Codec[Record]
	gen      gen.GenStore // nil => no stale-write guard
	log      Logger
	hooks    Hooks
	cost     SetCostFunc
	enabled  bool
}

func (rc *recordCache) getRecord(ctx context.Context, key string) (Record, bool) {
	raw, ok := rc.get(ctx, key)
	if !ok {
		return Record{}, false
	}
	g, payload, err := wire.DecodeRecord(raw)
	if err != nil {
		rc.heal(ctx, key, "corrupt")
		return Record{}, false
	}
	if !rc.current(ctx, key, g) {
		rc.heal(ctx, key, "gen_mismatch")
		return Record{}, false
	}
	rec, err := rc.codec.Decode(payload)
	if err != nil {
		rc.heal(ctx, key, "value_decode")
		return Record{}, false
	}
	return rec, true
}

// getList returns a cached field-set result. An empty cached result is a hit.
func (rc *recordCache) getList(ctx context.Context, key string) ([]Record, bool) {
	raw, ok := rc.get(ctx, key)
	if !ok {
		return nil, false
	}
	g, payloads, err := wire.DecodeList(raw)
	if err != nil {
		rc.heal(ctx, key, "corrupt")
		return nil, false
	}
	if !rc.current(ctx, key, g) {
		rc.heal(ctx, key, "gen_mismatch")
		return nil, false
	}
	out := make([]Record, 0, len(payloads))
	for _, p := range payloads {
		rec, err := rc.codec.Decode(p)
		if err != nil {
			rc.heal(ctx, key, "value_decode")
			return nil, false
		}
		out = append(out, rec)
	}
	return out, true
}

// snapshot is taken before a fetch; the matching set compares against it.
func (rc *recordCache) snapshot(ctx context.Context, key string) uint64 {
	if rc.gen == nil || !rc.enabled {
		return 0
	}
	g, err := rc.gen.Snapshot(ctx, key)
	if err != nil {
		// 0 makes the later write skip unless the key was never bumped
		rc.log.Warn("gen snapshot error", Fields{"key": key, "err": err})
		rc.hooks.CacheError("get", key, err)
		return 0
	}
	return g
}

func (rc *recordCache) setRecord(ctx context.Context, key string, rec Record, observed uint64, ttl time.Duration) {
	if !rc.enabled {
		return
	}
	payload, err := rc.codec.Encode(rec)
	if err != nil {
		rc.log.Warn("record encode failed", Fields{"key": key, "err": err})
		rc.hooks.CacheError("encode", key, err)
		return
	}
	rc.set(ctx, key, wire.EncodeRecord(observed, payload), observed, false, 1, ttl)
}

func (rc *recordCache) setList(ctx context.Context, key string, recs []Record, observed uint64, ttl time.Duration) {
	if !rc.enabled {
		return
	}
	payloads := make([][]byte, 0, len(recs))
	for _, rec := range recs {
		p, err := rc.codec.Encode(rec)
		if err != nil {
			rc.log.Warn("record encode failed", Fields{"key": key, "err": err})
			rc.hooks.CacheError("encode", key, err)
			return
		}
		payloads = append(payloads, p)
	}
	rc.set(ctx, key, wire.EncodeList(observed, payloads), observed, true, len(recs), ttl)
}

// invalidate bumps the generation (when configured) and deletes the entry.
// Without a GenStore it does not affect fetches already in flight.
func (rc *recordCache) invalidate(ctx context.Context, key string) error {
	if !rc.enabled {
		return nil
	}
	var bumpErr error
	var newGen uint64
	if rc.gen != nil {
		newGen, bumpErr = rc.gen.Bump(ctx, key)
		if bumpErr != nil {
			rc.log.Error("gen bump error", Fields{"key": key, "err": bumpErr})
			rc.hooks.CacheError("bump", key, bumpErr)
		}
	}
	delErr := rc.provider.Del(ctx, key)
	if delErr != nil {
		rc.log.Warn("cache delete failed", Fields{"key": key, "err": delErr})
		rc.hooks.CacheError("del", key, delErr)
	}
	// either a bumped generation or a delete keeps the old entry from being served
	if delErr != nil && (rc.gen == nil || bumpErr != nil) {
		return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}
	rc.log.Debug("invalidated key", Fields{"key": key, "newGen": newGen})
	return nil
}

func (rc *recordCache) get(ctx context.Context, key string) ([]byte, bool) {
	if !rc.enabled {
		return nil, false
	}
	raw, ok, err := rc.provider.Get(ctx, key)
	if err != nil {
		rc.log.Warn("cache get failed; treating as miss", Fields{"key": key, "err": err})
		rc.hooks.CacheError("get", key, err)
		return nil, false
	}
	return raw, ok
}

func (rc *recordCache) set(ctx context.Context, key string, b []byte, observed uint64, isList bool, n int, ttl time.Duration) {
	if !rc.current(ctx, key, observed) {
		rc.log.Debug("cache write skipped (gen moved)", Fields{"key": key, "obs": observed})
		rc.hooks.StaleWriteSkipped(key)
		return
	}
	ok, err := rc.provider.Set(ctx, key, b, rc.cost(key, b, isList, n), ttl)
	if err != nil {
		rc.log.Warn("cache set failed", Fields{"key": key, "err": err})
		rc.hooks.CacheError("set", key, err)
		return
	}
	if !ok {
		rc.log.Debug("cache set rejected by provider (pressure)", Fields{"key": key})
		rc.hooks.ProviderSetRejected(key)
	}
}

// current reports whether g is still the generation of key. Without a
// GenStore every generation is 0 and always current.
func (rc *recordCache) current(ctx context.Context, key string, g uint64) bool {
	if rc.gen == nil {
		return true
	}
	now, err := rc.gen.Snapshot(ctx, key)
	if err != nil {
		rc.log.Warn("gen snapshot error", Fields{"key": key, "err": err})
		rc.hooks.CacheError("get", key, err)
		return false
	}
	return now == g
}

func (rc *recordCache) heal(ctx context.Context, key, reason string) {
	_ = rc.provider.Del(ctx, key)
	rc.log.Debug("dropped cache entry", Fields{"key": key, "reason": reason})
	rc.hooks.SelfHeal(key, reason)
}
