package docsource

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	gen "github.com/unkn0wn-root/docsource/genstore"
	"github.com/unkn0wn-root/docsource/handle"
	pr "github.com/unkn0wn-root/docsource/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type memProvider struct {
	mu     sync.Mutex
	m      map[string]memEntry
	sets   int
	reject bool
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sets++
	if p.reject {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.m[key] = memEntry{v: value, exp: exp}
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	_, ok, _ := p.Get(context.Background(), key)
	return ok
}

func (p *memProvider) expiry(key string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m[key].exp
}

func (p *memProvider) setCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sets
}

// brokenProvider fails every operation.
type brokenProvider struct{ err error }

var _ pr.Provider = brokenProvider{}

func (b brokenProvider) Get(context.Context, string) ([]byte, bool, error) { return nil, false, b.err }
func (b brokenProvider) Set(context.Context, string, []byte, int64, time.Duration) (bool, error) {
	return false, b.err
}
func (b brokenProvider) Del(context.Context, string) error { return b.err }
func (b brokenProvider) Close(context.Context) error       { return nil }

type delErrProvider struct {
	*memProvider
	err error
}

func (p *delErrProvider) Del(_ context.Context, _ string) error { return p.err }

type failingGenStore struct {
	bumpErr error
	snapErr error
}

var _ gen.GenStore = (*failingGenStore)(nil)

func (f *failingGenStore) Snapshot(context.Context, string) (uint64, error) { return 0, f.snapErr }
func (f *failingGenStore) Bump(context.Context, string) (uint64, error)     { return 0, f.bumpErr }
func (f *failingGenStore) Cleanup(time.Duration)                            {}
func (f *failingGenStore) Close(context.Context) error                      { return nil }

// recordingHooks counts events by name.
type recordingHooks struct {
	NopHooks
	mu     sync.Mutex
	events map[string]int
	heals  []string
}

func newRecordingHooks() *recordingHooks { return &recordingHooks{events: make(map[string]int)} }

func (h *recordingHooks) add(name string) {
	h.mu.Lock()
	h.events[name]++
	h.mu.Unlock()
}

func (h *recordingHooks) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[name]
}

func (h *recordingHooks) CacheHit(_, kind string)          { h.add("hit:" + kind) }
func (h *recordingHooks) CacheMiss(_, kind string)         { h.add("miss:" + kind) }
func (h *recordingHooks) CacheError(op, _ string, _ error) { h.add("error:" + op) }
func (h *recordingHooks) ProviderSetRejected(string)       { h.add("rejected") }
func (h *recordingHooks) StaleWriteSkipped(string)         { h.add("stale") }
func (h *recordingHooks) BatchDispatched(string, int, error, time.Duration) {
	h.add("batch")
}

func (h *recordingHooks) SelfHeal(_, reason string) {
	h.mu.Lock()
	h.heals = append(h.heals, reason)
	h.mu.Unlock()
	h.add("heal")
}

var errBroken = errors.New("cache unavailable")

// fixedCollection answers every read with the same documents.
type fixedCollection struct {
	name string
	docs []bson.M
}

var _ handle.Collection = (*fixedCollection)(nil)

func (f *fixedCollection) Name() string { return f.name }
func (f *fixedCollection) FindByIDs(context.Context, []any) ([]bson.M, error) {
	return f.docs, nil
}
func (f *fixedCollection) Find(context.Context, bson.D) ([]bson.M, error) { return f.docs, nil }

type recordingLogger struct {
	NopLogger
	mu   sync.Mutex
	warn []string
}

func (l *recordingLogger) Warn(msg string, _ Fields) {
	l.mu.Lock()
	l.warn = append(l.warn, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warn...)
}
