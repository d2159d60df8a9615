package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   int
	Name string
}

// recorder is a fetch backed by a fixed table. It records every call.
type recorder struct {
	mu    sync.Mutex
	calls [][]int
	table map[int]item
	err   error
}

func (r *recorder) fetch(_ context.Context, keys []int) ([]item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]int(nil), keys...))
	if r.err != nil {
		return nil, r.err
	}
	// reverse order on purpose: results must be matched by key
	var out []item
	for i := len(keys) - 1; i >= 0; i-- {
		if it, ok := r.table[keys[i]]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *recorder) Calls() [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int(nil), r.calls...)
}

func newTable(ids ...int) map[int]item {
	m := make(map[int]item, len(ids))
	for _, id := range ids {
		m[id] = item{ID: id, Name: "n" + string(rune('a'+id))}
	}
	return m
}

func keyOf(it item) int { return it.ID }

type result struct {
	key   int
	v     item
	found bool
	err   error
}

// loadAll issues one Load per key concurrently, waits until every caller has
// joined the pending batch, then closes the window.
func loadAll(t *testing.T, l *Loader[int, item], keys ...int) []result {
	t.Helper()
	out := make([]result, len(keys))
	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func(i, k int) {
			defer wg.Done()
			v, found, err := l.Load(k)
			out[i] = result{key: k, v: v, found: found, err: err}
		}(i, k)
	}
	require.Eventually(t, func() bool { return l.Pending() == len(keys) }, 2*time.Second, time.Millisecond)
	l.Dispatch()
	wg.Wait()
	return out
}

func TestLoaderCoalescesDistinctKeysIntoOneFetch(t *testing.T) {
	r := &recorder{table: newTable(1, 2, 3, 4, 5)}
	l := New(r.fetch, keyOf, Options{Wait: time.Hour})

	res := loadAll(t, l, 1, 2, 3, 4, 5)

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, calls[0])
	for _, got := range res {
		require.NoError(t, got.err)
		assert.True(t, got.found)
		assert.Equal(t, got.key, got.v.ID, "result matched to the wrong key")
	}
	assert.Equal(t, Stats{Batches: 1, Keys: 5}, l.Stats())
}

func TestLoaderDeduplicatesSameKey(t *testing.T) {
	r := &recorder{table: newTable(7, 8)}
	l := New(r.fetch, keyOf, Options{Wait: time.Hour})

	res := loadAll(t, l, 7, 7, 7, 8)

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []int{7, 8}, calls[0])
	for _, got := range res {
		require.NoError(t, got.err)
		assert.Equal(t, got.key, got.v.ID)
	}
}

func TestLoaderMissingKeyIsNotAnError(t *testing.T) {
	r := &recorder{table: newTable(1)}
	l := New(r.fetch, keyOf, Options{Wait: time.Hour})

	res := loadAll(t, l, 1, 99)
	for _, got := range res {
		require.NoError(t, got.err)
		if got.key == 99 {
			assert.False(t, got.found)
			assert.Zero(t, got.v)
		} else {
			assert.True(t, got.found)
		}
	}
}

func TestLoaderFailureFansOutThenRecovers(t *testing.T) {
	boom := errors.New("driver down")
	r := &recorder{table: newTable(1, 2), err: boom}
	l := New(r.fetch, keyOf, Options{Wait: time.Hour})

	for _, got := range loadAll(t, l, 1, 2, 2) {
		assert.ErrorIs(t, got.err, boom)
		assert.False(t, got.found)
	}

	r.mu.Lock()
	r.err = nil
	r.mu.Unlock()

	for _, got := range loadAll(t, l, 1, 2) {
		require.NoError(t, got.err)
		assert.True(t, got.found)
	}
	assert.Len(t, r.Calls(), 2)
}

func TestLoaderWindowExpires(t *testing.T) {
	r := &recorder{table: newTable(3)}
	l := New(r.fetch, keyOf, Options{Wait: 5 * time.Millisecond})

	v, found, err := l.Load(3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, v.ID)

	// a Load after resolution opens a new batch
	_, _, err = l.Load(3)
	require.NoError(t, err)
	assert.Len(t, r.Calls(), 2)
}

func TestLoaderMaxBatchClosesWindowEarly(t *testing.T) {
	r := &recorder{table: newTable(1, 2, 3)}
	l := New(r.fetch, keyOf, Options{Wait: time.Hour, MaxBatch: 2})

	var wg sync.WaitGroup
	for _, k := range []int{1, 2} {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			_, found, err := l.Load(k)
			assert.NoError(t, err)
			assert.True(t, found)
		}(k)
	}
	wg.Wait() // would hang for an hour without the size limit

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0], 2)
}

func TestLoaderFetchPanicBecomesError(t *testing.T) {
	l := New(func(context.Context, []int) ([]item, error) {
		panic("bad driver")
	}, keyOf, Options{})

	_, _, err := l.Load(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad driver")
}

func TestLoaderPassesContextAndReportsDispatch(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")

	var seen atomic.Value
	var dispatched atomic.Int64
	l := New(func(ctx context.Context, keys []int) ([]item, error) {
		seen.Store(ctx.Value(ctxKey{}))
		return nil, nil
	}, keyOf, Options{
		Context: ctx,
		OnDispatch: func(keys int, err error, _ time.Duration) {
			dispatched.Add(int64(keys))
		},
	})

	_, found, err := l.Load(1)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "req-1", seen.Load())
	assert.EqualValues(t, 1, dispatched.Load())
}

func TestDispatchOnIdleLoaderIsNoop(t *testing.T) {
	r := &recorder{}
	l := New(r.fetch, keyOf, Options{})
	l.Dispatch()
	assert.Zero(t, l.Pending())
	assert.Empty(t, r.Calls())
}

func TestLoadWithArgsAreScopedToTheirBatch(t *testing.T) {
	var mu sync.Mutex
	var seen [][][]any
	l := NewWithArgs(func(_ context.Context, keys []int, args [][]any) ([]item, error) {
		mu.Lock()
		seen = append(seen, args)
		mu.Unlock()
		return nil, nil
	}, keyOf, Options{Wait: time.Hour})

	var wg sync.WaitGroup
	for _, arg := range []any{"7", int64(7), "7", nil} {
		wg.Add(1)
		go func(arg any) {
			defer wg.Done()
			_, _, _ = l.LoadWith(7, arg)
		}(arg)
	}
	require.Eventually(t, func() bool { return l.Pending() == 4 }, 2*time.Second, time.Millisecond)
	l.Dispatch()
	wg.Wait()

	// the next batch starts without the previous arguments
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = l.Load(7)
	}()
	require.Eventually(t, func() bool { return l.Pending() == 1 }, 2*time.Second, time.Millisecond)
	l.Dispatch()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.ElementsMatch(t, []any{"7", int64(7)}, seen[0][0])
	assert.Empty(t, seen[1][0])
}
