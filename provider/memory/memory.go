// Package memory is the default in-process provider: a mutex-guarded map with
// per-entry TTLs that are checked lazily on read and swept periodically.
package memory

import (
	"context"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/docsource/provider"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Provider struct {
	mu sync.RWMutex
	m  map[string]entry

	now    func() time.Time
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ pr.Provider = (*Provider)(nil)

// New creates a provider. sweep > 0 starts a background loop dropping
// expired entries; 0 relies on lazy expiry only.
func New(sweep time.Duration) *Provider {
	p := &Provider{m: make(map[string]entry), now: time.Now}
	if sweep > 0 {
		p.stopCh = make(chan struct{})
		p.wg.Add(1)
		go p.sweepLoop(sweep)
	}
	return p
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	e, ok := p.m[key]
	p.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && p.now().After(e.exp) {
		p.mu.Lock()
		if cur, ok := p.m[key]; ok && cur.exp.Equal(e.exp) {
			delete(p.m, key)
		}
		p.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = p.now().Add(ttl)
	}
	p.mu.Lock()
	p.m[key] = entry{v: value, exp: exp}
	p.mu.Unlock()
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

// Len counts stored entries, expired ones included until swept.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}

// Keys lists stored keys in no particular order.
func (p *Provider) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.m))
	for k := range p.m {
		out = append(out, k)
	}
	return out
}

func (p *Provider) Close(_ context.Context) error {
	p.once.Do(func() {
		if p.stopCh != nil {
			close(p.stopCh)
			p.wg.Wait()
		}
	})
	return nil
}

func (p *Provider) sweepLoop(every time.Duration) {
	defer p.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.sweep()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Provider) sweep() {
	now := p.now()
	p.mu.Lock()
	for k, e := range p.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(p.m, k)
		}
	}
	p.mu.Unlock()
}
