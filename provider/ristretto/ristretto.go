// Package ristretto keeps record-cache entries in a Ristretto cache, sized by
// the encoded bytes of each record or field-set result.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/docsource/provider"
)

var ErrInvalidConfig = errors.New("ristretto: NumCounters, MaxCost and BufferItems must be positive")

type Provider struct {
	cache *rc.Cache
	wait  bool
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64 // keys tracked for admission, ~10x the expected entries
	MaxCost     int64 // budget in the unit of Set's cost (bytes by default)
	BufferItems int64
	Metrics     bool

	// Ristretto applies writes asynchronously. Synchronous waits for each
	// write to land so a lookup right after a miss sees the cached value.
	Synchronous bool
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, ErrInvalidConfig
	}
	cache, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
		// MaxCost budgets entry bytes only
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{cache: cache, wait: cfg.Synchronous}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := p.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	if b, isBytes := v.([]byte); isBytes && b != nil {
		return b, true, nil
	}
	// only this package writes here; anything else is dropped
	p.cache.Del(key)
	return nil, false, nil
}

// Set charges cost against MaxCost; cost <= 0 charges the entry's length.
// It returns ok=false when admission dropped the write. ttl <= 0 stores
// without expiry.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if cost <= 0 {
		cost = int64(len(value))
	}
	admitted := p.cache.SetWithTTL(key, value, cost, max(ttl, 0))
	if admitted && p.wait {
		p.cache.Wait()
	}
	return admitted, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.cache.Del(key)
	return nil
}

// Close flushes pending writes before stopping Ristretto's goroutines.
func (p *Provider) Close(_ context.Context) error {
	p.cache.Wait()
	p.cache.Close()
	return nil
}

// Metrics exposes ristretto's counters; nil unless Config.Metrics is set.
func (p *Provider) Metrics() *rc.Metrics { return p.cache.Metrics }
