// usage:
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{
//	    SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	_ = users.Initialize(docsource.Config{
//	    Cache: provider,
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/docsource"
)

// Hooks forwards events to inner on a bounded worker pool. Events are dropped
// when the queue is full.
type Hooks struct {
	inner docsource.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ docsource.Hooks = (*Hooks)(nil)

func New(inner docsource.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events fired after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) CacheHit(c, k string)  { h.try(func() { h.inner.CacheHit(c, k) }) }
func (h *Hooks) CacheMiss(c, k string) { h.try(func() { h.inner.CacheMiss(c, k) }) }
func (h *Hooks) CacheError(op, k string, err error) {
	h.try(func() { h.inner.CacheError(op, k, err) })
}
func (h *Hooks) SelfHeal(k, r string)         { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string) { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) StaleWriteSkipped(k string)   { h.try(func() { h.inner.StaleWriteSkipped(k) }) }
func (h *Hooks) BatchDispatched(c string, n int, err error, took time.Duration) {
	h.try(func() { h.inner.BatchDispatched(c, n, err, took) })
}
