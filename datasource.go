package docsource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unkn0wn-root/docsource/batch"
	c "github.com/unkn0wn-root/docsource/codec"
	"github.com/unkn0wn-root/docsource/handle"
	"github.com/unkn0wn-root/docsource/internal/keys"
	pr "github.com/unkn0wn-root/docsource/provider"
	"github.com/unkn0wn-root/docsource/provider/memory"
)

// DataSource wraps one storage handle for the lifetime of a request.
// It is safe for concurrent use.
type DataSource struct {
	h    any
	info handle.Info

	mu       sync.RWMutex
	st       *state
	ownCache pr.Provider // default provider, reused across Initialize calls
}

// state is everything Initialize builds. Lookups take a snapshot of it, so a
// concurrent re-Initialize never mixes two configurations in one lookup.
type state struct {
	cfg    Config
	ns     string
	ttl    time.Duration
	log    Logger
	hooks  Hooks
	cache  *recordCache
	loader *batch.Loader[string, Record]

	sibMu    sync.Mutex
	siblings map[string]*DataSource
}

// New classifies h. It fails with ErrInvalidHandle when h is neither a
// collection nor a model.
func New(h any) (*DataSource, error) {
	info, err := handle.Resolve(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %T", err, h)
	}
	return &DataSource{h: h, info: info}, nil
}

// Initialize (re)builds the per-request state. It may be called with a zero
// Config and may be called again; lookups issued before the first call
// initialize with defaults.
func (d *DataSource) Initialize(cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.st = d.build(cfg)
	d.st.log.Debug("data source initialized", Fields{
		"collection": d.info.CollectionName,
		"kind":       d.info.Kind.String(),
		"cache":      !cfg.DisableCache,
	})
	return nil
}

func (d *DataSource) build(cfg Config) *state {
	provider := cfg.Cache
	if provider == nil {
		if d.ownCache == nil {
			// lazy expiry only: a sweeper would outlive the request
			d.ownCache = memory.New(0)
		}
		provider = d.ownCache
	}
	st := &state{
		cfg:   cfg,
		ns:    cfg.KeyPrefix + d.info.CollectionName,
		ttl:   cfg.TTL,
		log:   coalesce[Logger](cfg.Logger, NopLogger{}),
		hooks: coalesce[Hooks](cfg.Hooks, NopHooks{}),
	}
	st.cache = &recordCache{
		provider: provider,
		codec:    coalesce[c.Codec[Record]](cfg.Codec, c.BSON[Record]{}),
		gen:      cfg.GenStore,
		log:      st.log,
		hooks:    st.hooks,
		cost:     cfg.ComputeSetCost,
		enabled:  !cfg.DisableCache,
	}
	if st.cache.cost == nil {
		st.cache.cost = func(string, []byte, bool, int) int64 { return 1 }
	}
	st.loader = batch.NewWithArgs(d.fetchByIDs(st), recordKey, batch.Options{
		Wait:     cfg.BatchWait,
		MaxBatch: cfg.MaxBatch,
		Context:  cfg.Context,
		OnDispatch: func(n int, err error, took time.Duration) {
			st.hooks.BatchDispatched(d.info.CollectionName, n, err, took)
		},
	})
	return st
}

func (d *DataSource) state() *state {
	d.mu.RLock()
	st := d.st
	d.mu.RUnlock()
	if st != nil {
		return st
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.st == nil {
		d.st = d.build(Config{})
	}
	return d.st
}

// Handle returns the handle passed to New.
func (d *DataSource) Handle() any { return d.h }

// Info is the classification of the handle passed to New.
func (d *DataSource) Info() handle.Info { return d.info }

// Collection is the driver-level collection behind the handle.
func (d *DataSource) Collection() handle.Collection { return d.info.Collection }

// FindOneByID returns the record with _id equal to id. Lookups issued
// within one batch window share a single FindByIDs round-trip. A missing
// record yields ErrNotFound and is not cached.
func (d *DataSource) FindOneByID(ctx context.Context, id any, opts ...LookupOption) (Record, error) {
	st := d.state()
	text, err := keys.IDString(id)
	if err != nil {
		return Record{}, err
	}
	key := st.ns + ":id:" + text

	if rec, ok := st.cache.getRecord(ctx, key); ok {
		st.hooks.CacheHit(d.info.CollectionName, "id")
		return d.decorate(rec), nil
	}
	st.hooks.CacheMiss(d.info.CollectionName, "id")

	observed := st.cache.snapshot(ctx, key)
	rec, found, err := st.loader.LoadWith(text, d.castID(id))
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, ErrNotFound
	}
	// waiters on the same key share the fetched document
	rec = rec.clone()
	st.cache.setRecord(ctx, key, rec, observed, st.ttlFor(opts))
	return d.decorate(rec), nil
}

// FindManyByIDs looks up every id concurrently so they share batches.
// Records come back in the order of ids; ids that match nothing are skipped.
func (d *DataSource) FindManyByIDs(ctx context.Context, ids []any, opts ...LookupOption) ([]Record, error) {
	recs := make([]Record, len(ids))
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id any) {
			defer wg.Done()
			recs[i], errs[i] = d.FindOneByID(ctx, id, opts...)
		}(i, id)
	}
	wg.Wait()

	out := make([]Record, 0, len(ids))
	for i := range ids {
		switch {
		case errs[i] == nil:
			out = append(out, recs[i])
		case errors.Is(errs[i], ErrNotFound):
		default:
			return nil, errs[i]
		}
	}
	return out, nil
}

// FindByFields returns every record matching all field predicates. Results
// are cached as one sequence, empty ones included. Field-set queries are
// not batched: concurrent identical calls may each reach storage.
func (d *DataSource) FindByFields(ctx context.Context, fields FieldSet, opts ...LookupOption) ([]Record, error) {
	st := d.state()
	key, err := keys.ForFields(st.ns, fields)
	if err != nil {
		return nil, err
	}

	if recs, ok := st.cache.getList(ctx, key); ok {
		st.hooks.CacheHit(d.info.CollectionName, "fields")
		return d.decorateAll(recs), nil
	}
	st.hooks.CacheMiss(d.info.CollectionName, "fields")

	observed := st.cache.snapshot(ctx, key)
	filter, err := keys.Filter(fields)
	if err != nil {
		return nil, err
	}
	docs, err := d.info.Collection.Find(ctx, filter)
	if err != nil {
		return nil, &StorageError{Op: "Find", Collection: d.info.CollectionName, Err: err}
	}
	recs := make([]Record, 0, len(docs))
	for _, doc := range docs {
		recs = append(recs, NewRecord(doc))
	}
	st.cache.setList(ctx, key, recs, observed, st.ttlFor(opts))
	return d.decorateAll(recs), nil
}

// DeleteFromCacheByID drops the cached record for id. A fetch for id that is
// already in flight may still write its (older) result afterwards unless a
// GenStore is configured.
func (d *DataSource) DeleteFromCacheByID(ctx context.Context, id any) error {
	st := d.state()
	key, err := keys.ForID(st.ns, id)
	if err != nil {
		return err
	}
	return st.cache.invalidate(ctx, key)
}

// DeleteFromCacheByFields drops the cached result of FindByFields(fields).
func (d *DataSource) DeleteFromCacheByFields(ctx context.Context, fields FieldSet) error {
	st := d.state()
	key, err := keys.ForFields(st.ns, fields)
	if err != nil {
		return err
	}
	return st.cache.invalidate(ctx, key)
}

// Model returns a data source for a handle registered in Config.Models.
// It shares the parent's configuration but batches on its own collection.
func (d *DataSource) Model(name string) (*DataSource, error) {
	st := d.state()
	st.sibMu.Lock()
	defer st.sibMu.Unlock()
	if sib, ok := st.siblings[name]; ok {
		return sib, nil
	}
	h, ok := st.cfg.Models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	sib, err := New(h)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}
	cfg := st.cfg
	cfg.Cache = st.cache.provider
	cfg.Models = nil
	if err := sib.Initialize(cfg); err != nil {
		return nil, err
	}
	if st.siblings == nil {
		st.siblings = make(map[string]*DataSource)
	}
	st.siblings[name] = sib
	return sib, nil
}

// Stats reports the batches issued by the current identifier loader.
func (d *DataSource) Stats() batch.Stats { return d.state().loader.Stats() }

// Close releases the default in-process cache. Caller-supplied providers
// are left open.
func (d *DataSource) Close(ctx context.Context) error {
	d.mu.Lock()
	own := d.ownCache
	d.ownCache = nil
	d.mu.Unlock()
	if own != nil {
		return own.Close(ctx)
	}
	return nil
}

func (d *DataSource) fetchByIDs(st *state) batch.ArgFetchFunc[string, Record] {
	coll := d.info.Collection
	name := d.info.CollectionName
	return func(ctx context.Context, texts []string, raws [][]any) ([]Record, error) {
		// every form callers used in this batch is queried; the driver
		// decides which of them match a stored _id
		ids := make([]any, 0, len(texts))
		for i, t := range texts {
			if len(raws[i]) == 0 {
				ids = append(ids, t)
				continue
			}
			ids = append(ids, raws[i]...)
		}
		docs, err := coll.FindByIDs(ctx, ids)
		if err != nil {
			st.log.Warn("batched fetch failed", Fields{"collection": name, "ids": len(ids), "err": err})
			return nil, &StorageError{Op: "FindByIDs", Collection: name, Err: err}
		}
		recs := make([]Record, 0, len(docs))
		for _, doc := range docs {
			rec := NewRecord(doc)
			if _, err := keys.IDString(rec.RawID()); err != nil {
				st.log.Warn("fetched document has an unusable _id", Fields{"collection": name, "err": err})
				continue
			}
			recs = append(recs, rec)
		}
		return recs, nil
	}
}

// castID converts hex strings to ObjectIDs for model-shaped handles, the way
// a schema casts _id. Raw collections query with the id as given.
func (d *DataSource) castID(id any) any {
	if !d.info.IsModel {
		return id
	}
	if s, ok := id.(string); ok {
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			return oid
		}
	}
	return id
}

// recordKey matches fetched records back to requests by identifier text.
// fetchByIDs drops records whose _id has no text form.
func recordKey(r Record) string {
	s, _ := keys.IDString(r.RawID())
	return s
}

func (d *DataSource) decorate(r Record) Record {
	r.decorated = d.info.IsModel
	return r
}

func (d *DataSource) decorateAll(recs []Record) []Record {
	for i := range recs {
		recs[i] = d.decorate(recs[i])
	}
	return recs
}
