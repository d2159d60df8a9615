package genstore

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	gen      uint64
	bumpedAt time.Time
}

// Local keeps generations in-process. It only protects writers sharing the
// same process; use Redis when several replicas write to one cache.
type Local struct {
	mu   sync.RWMutex
	gens map[string]localEntry

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ GenStore = (*Local)(nil)

// NewLocal starts a cleanup loop when both cleanupInterval and retention are
// positive.
func NewLocal(cleanupInterval, retention time.Duration) *Local {
	s := &Local{gens: make(map[string]localEntry)}
	if cleanupInterval > 0 && retention > 0 {
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			t := time.NewTicker(cleanupInterval)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *Local) Snapshot(_ context.Context, key string) (uint64, error) {
	s.mu.RLock()
	e := s.gens[key]
	s.mu.RUnlock()
	return e.gen, nil
}

func (s *Local) Bump(_ context.Context, key string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	e := s.gens[key]
	e.gen++
	e.bumpedAt = now
	s.gens[key] = e
	s.mu.Unlock()
	return e.gen, nil
}

// Cleanup forgets generations older than retention. A forgotten key reads as
// generation 0 again, which is safe as long as retention exceeds the longest
// fetch.
func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	for k, e := range s.gens {
		if e.bumpedAt.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.wg.Wait()
		}
	})
	return nil
}
