// Package bigcache keeps record-cache entries in BigCache, suited to many
// small records with little GC pressure.
//
// BigCache has no per-entry TTL. Every entry lives for Config.LifeWindow and
// the ttl handed to Set is ignored, so pick a LifeWindow no longer than the
// staleness the data source may serve.
package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/docsource/provider"
)

// DefaultLifeWindow applies when Config.LifeWindow is zero.
const DefaultLifeWindow = 10 * time.Minute

type Provider struct {
	cache    *bc.BigCache
	maxEntry int // bytes; 0 => no limit
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	LifeWindow         time.Duration // 0 => DefaultLifeWindow
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int // initial shard sizing hint, in bytes
	HardMaxCacheSizeMB int // 0 = unlimited
	Shards             int // power of two; 0 = bigcache default

	// RejectLargerThan refuses entries above this many bytes with ok=false
	// instead of letting one large field-set result evict many records.
	RejectLargerThan int
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = DefaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	cache, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &Provider{cache: cache, maxEntry: cfg.RejectLargerThan}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.cache.Get(key)
	switch {
	case errors.Is(err, bc.ErrEntryNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	if p.maxEntry > 0 && len(value) > p.maxEntry {
		return false, nil
	}
	if err := p.cache.Set(key, value); err != nil {
		return false, err
	}
	return true, nil
}

// Del treats a missing key as deleted.
func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.cache.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.cache.Close()
}
