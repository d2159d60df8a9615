package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/docsource"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	MissEvery     uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
	// Batches slower than this are logged at Warn.
	SlowBatch time.Duration
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	missCtr     atomic.Uint64
}

var _ docsource.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

// CacheHit is not logged; use hooks/prom for hit ratios.
func (h *Hooks) CacheHit(string, string) {}

func (h *Hooks) CacheMiss(collection, kind string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("docsource.cache_miss",
		"collection", collection,
		"kind", kind)
}

func (h *Hooks) CacheError(op, storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("docsource.cache_error",
		"op", op,
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("docsource.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("docsource.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) StaleWriteSkipped(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Info("docsource.stale_write_skipped",
		"key", h.redact(storageKey))
}

func (h *Hooks) BatchDispatched(collection string, keys int, err error, took time.Duration) {
	if h.l == nil {
		return
	}
	switch {
	case err != nil:
		h.l.Error("docsource.batch_failed",
			"collection", collection,
			"keys", keys,
			"err", err)
	case h.opts.SlowBatch > 0 && took >= h.opts.SlowBatch:
		h.l.Warn("docsource.batch_slow",
			"collection", collection,
			"keys", keys,
			"took", took)
	}
}
