// Package batch coalesces point lookups issued within a short window into a
// single fetch.
//
// A Loader moves through IDLE -> ACCUMULATING -> FETCHING -> RESOLVING -> IDLE.
// The first Load of an idle loader opens a window of Options.Wait; every Load
// issued before the window closes joins the same batch. The window closes
// early once MaxBatch distinct keys are pending, or when Dispatch is called.
// A closed batch is fetched with one call carrying every distinct key, and the
// outcome fans out to every waiter. Loads issued while a batch is fetching
// open the next window.
//
// Loaders are cheap and meant to be scoped to one unit of work (a request).
// In-flight fetches cannot be cancelled.
package batch

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultWait = time.Millisecond

// FetchFunc loads values for keys in one round-trip. Values may come back in
// any order; keys without a value are reported as not found.
type FetchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, error)

// ArgFetchFunc is FetchFunc for loaders whose callers attach arguments to
// keys with LoadWith. args[i] lists the distinct arguments loaded with
// keys[i] in arrival order; it is empty when every caller used Load.
type ArgFetchFunc[K comparable, V any] func(ctx context.Context, keys []K, args [][]any) ([]V, error)

// KeyFunc extracts the key a fetched value answers.
type KeyFunc[K comparable, V any] func(V) K

type Options struct {
	Wait     time.Duration   // 0 => DefaultWait
	MaxBatch int             // 0 => unbounded
	Context  context.Context // passed to every fetch; nil => context.Background()

	// OnDispatch runs after each fetch resolves, before waiters are released.
	OnDispatch func(keys int, err error, took time.Duration)
}

type Stats struct {
	Batches int64 // fetches issued
	Keys    int64 // distinct keys fetched
}

type Loader[K comparable, V any] struct {
	fetch      ArgFetchFunc[K, V]
	keyOf      KeyFunc[K, V]
	wait       time.Duration
	max        int
	ctx        context.Context
	onDispatch func(int, error, time.Duration)

	mu  sync.Mutex
	cur *batch[K, V] // accumulating batch, nil when idle

	batches atomic.Int64
	keys    atomic.Int64
}

type batch[K comparable, V any] struct {
	keys    []K // insertion order
	seen    map[K]struct{}
	args    map[K][]any // dropped with the batch
	waiters int
	timer   *time.Timer

	done chan struct{}
	vals map[K]V // read-only once done is closed
	err  error
}

func New[K comparable, V any](fetch FetchFunc[K, V], keyOf KeyFunc[K, V], opts Options) *Loader[K, V] {
	if fetch == nil {
		panic("batch: fetch and keyOf are required")
	}
	return NewWithArgs(func(ctx context.Context, keys []K, _ [][]any) ([]V, error) {
		return fetch(ctx, keys)
	}, keyOf, opts)
}

// NewWithArgs builds a loader whose fetch also receives the arguments
// callers passed to LoadWith, scoped to the batch they joined.
func NewWithArgs[K comparable, V any](fetch ArgFetchFunc[K, V], keyOf KeyFunc[K, V], opts Options) *Loader[K, V] {
	if fetch == nil || keyOf == nil {
		panic("batch: fetch and keyOf are required")
	}
	l := &Loader[K, V]{
		fetch:      fetch,
		keyOf:      keyOf,
		wait:       opts.Wait,
		max:        opts.MaxBatch,
		ctx:        opts.Context,
		onDispatch: opts.OnDispatch,
	}
	if l.wait <= 0 {
		l.wait = DefaultWait
	}
	if l.ctx == nil {
		l.ctx = context.Background()
	}
	return l
}

// Load joins the current batch (opening one if idle) and waits for it to
// resolve. found=false with a nil error means the fetch had no value for key.
func (l *Loader[K, V]) Load(key K) (v V, found bool, err error) {
	return l.LoadWith(key, nil)
}

// LoadWith is Load with an argument handed to the fetch alongside key, e.g.
// the caller's own form of an identifier. A nil arg is not recorded.
func (l *Loader[K, V]) LoadWith(key K, arg any) (v V, found bool, err error) {
	b := l.enqueue(key, arg)
	<-b.done
	if b.err != nil {
		return v, false, b.err
	}
	v, found = b.vals[key]
	return v, found, nil
}

// Dispatch closes the accumulating window now, if there is one.
func (l *Loader[K, V]) Dispatch() {
	l.mu.Lock()
	b := l.cur
	l.cur = nil
	l.mu.Unlock()
	if b != nil {
		b.timer.Stop()
		go l.run(b)
	}
}

// Pending is the number of callers waiting on the accumulating batch.
func (l *Loader[K, V]) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		return 0
	}
	return l.cur.waiters
}

func (l *Loader[K, V]) Stats() Stats {
	return Stats{Batches: l.batches.Load(), Keys: l.keys.Load()}
}

func (l *Loader[K, V]) enqueue(key K, arg any) *batch[K, V] {
	l.mu.Lock()
	b := l.cur
	if b == nil {
		b = &batch[K, V]{
			seen: make(map[K]struct{}),
			done: make(chan struct{}),
		}
		l.cur = b
		b.timer = time.AfterFunc(l.wait, func() { l.expire(b) })
	}
	if _, dup := b.seen[key]; !dup {
		b.seen[key] = struct{}{}
		b.keys = append(b.keys, key)
	}
	if arg != nil {
		if b.args == nil {
			b.args = make(map[K][]any)
		}
		b.args[key] = appendArg(b.args[key], arg)
	}
	b.waiters++

	full := l.max > 0 && len(b.keys) >= l.max
	if full {
		l.cur = nil
	}
	l.mu.Unlock()

	if full {
		b.timer.Stop()
		go l.run(b)
	}
	return b
}

// expire runs when the window timer fires. The batch may already have been
// detached by MaxBatch or Dispatch, in which case there is nothing to do.
func (l *Loader[K, V]) expire(b *batch[K, V]) {
	l.mu.Lock()
	if l.cur != b {
		l.mu.Unlock()
		return
	}
	l.cur = nil
	l.mu.Unlock()
	l.run(b)
}

func (l *Loader[K, V]) run(b *batch[K, V]) {
	start := time.Now()
	args := make([][]any, len(b.keys))
	for i, k := range b.keys {
		args[i] = b.args[k]
	}
	b.args = nil
	vals, err := l.safeFetch(b.keys, args)
	if err == nil {
		b.vals = make(map[K]V, len(vals))
		for _, v := range vals {
			k := l.keyOf(v)
			if _, ok := b.vals[k]; !ok {
				b.vals[k] = v
			}
		}
	}
	b.err = err

	l.batches.Add(1)
	l.keys.Add(int64(len(b.keys)))
	if l.onDispatch != nil {
		l.onDispatch(len(b.keys), err, time.Since(start))
	}
	close(b.done)
}

func (l *Loader[K, V]) safeFetch(keys []K, args [][]any) (vals []V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch: fetch panicked: %v", r)
		}
	}()
	return l.fetch(l.ctx, keys, args)
}

func appendArg(args []any, arg any) []any {
	t := reflect.TypeOf(arg)
	for _, a := range args {
		if reflect.TypeOf(a) == t && t.Comparable() && a == arg {
			return args
		}
	}
	return append(args, arg)
}
