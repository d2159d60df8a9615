// Package memory is an in-process handle.Collection.
//
// It mirrors the driver semantics the data source depends on: FindByIDs is a
// single $in-style fetch returning documents in storage order, and Find
// matches dotted field paths through nested documents and arrays.
package memory

import (
	"context"
	"math"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unkn0wn-root/docsource/handle"
)

type Collection struct {
	name string

	mu   sync.RWMutex
	docs []bson.M
	err  error

	idCalls   atomic.Int64
	findCalls atomic.Int64
	lastIDs   atomic.Value // []any
}

var _ handle.Collection = (*Collection)(nil)

func New(name string) *Collection {
	return &Collection{name: name}
}

func (c *Collection) Name() string { return c.name }

// Insert stores copies of docs, assigning an ObjectID to documents without _id.
func (c *Collection) Insert(docs ...bson.M) []any {
	ids := make([]any, 0, len(docs))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range docs {
		cp := clone(d).(bson.M)
		if _, ok := cp["_id"]; !ok {
			cp["_id"] = primitive.NewObjectID()
		}
		c.docs = append(c.docs, cp)
		ids = append(ids, cp["_id"])
	}
	return ids
}

// Replace swaps the stored document with the same _id. It reports false when
// no such document exists.
func (c *Collection) Replace(doc bson.M) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, d := range c.docs {
		if Equal(d["_id"], doc["_id"]) {
			c.docs[i] = clone(doc).(bson.M)
			return true
		}
	}
	return false
}

// FailWith makes every subsequent read return err. A nil err clears it.
func (c *Collection) FailWith(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Collection) FindByIDs(_ context.Context, ids []any) ([]bson.M, error) {
	c.idCalls.Add(1)
	c.lastIDs.Store(append([]any(nil), ids...))

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	var out []bson.M
	for _, d := range c.docs {
		for _, id := range ids {
			if Equal(d["_id"], id) {
				out = append(out, clone(d).(bson.M))
				break
			}
		}
	}
	return out, nil
}

func (c *Collection) Find(_ context.Context, filter bson.D) ([]bson.M, error) {
	c.findCalls.Add(1)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	var out []bson.M
	for _, d := range c.docs {
		if Matches(d, filter) {
			out = append(out, clone(d).(bson.M))
		}
	}
	return out, nil
}

// FindByIDsCalls is the number of FindByIDs round-trips served so far.
func (c *Collection) FindByIDsCalls() int64 { return c.idCalls.Load() }

// FindCalls is the number of Find round-trips served so far.
func (c *Collection) FindCalls() int64 { return c.findCalls.Load() }

// LastIDs returns the ids passed to the most recent FindByIDs call.
func (c *Collection) LastIDs() []any {
	v, _ := c.lastIDs.Load().([]any)
	return v
}

// Matches reports whether doc satisfies every predicate in filter.
func Matches(doc bson.M, filter bson.D) bool {
	for _, e := range filter {
		if !matchPath(doc, splitPath(e.Key), e.Value) {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '.' {
			parts = append(parts, p[start:i])
			start = i + 1
		}
	}
	return append(parts, p[start:])
}

func matchPath(v any, path []string, want any) bool {
	if len(path) == 0 {
		if ops, ok := operators(want); ok {
			if arr, ok := asArray(v); ok {
				for _, el := range arr {
					if evalOps(el, ops) {
						return true
					}
				}
			}
			return evalOps(v, ops)
		}
		if arr, ok := asArray(v); ok {
			for _, el := range arr {
				if Equal(el, want) {
					return true
				}
			}
		}
		return Equal(v, want)
	}
	if arr, ok := asArray(v); ok {
		for _, el := range arr {
			if matchPath(el, path, want) {
				return true
			}
		}
		return false
	}
	m, ok := asDoc(v)
	if !ok {
		return false
	}
	next, ok := m[path[0]]
	if !ok {
		if len(path) != 1 {
			return false
		}
		if ops, isOps := operators(want); isOps {
			return evalOps(nil, ops)
		}
		return want == nil
	}
	return matchPath(next, path[1:], want)
}

func asDoc(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case bson.M:
		return t, true
	case map[string]any:
		return t, true
	case bson.D:
		return t.Map(), true
	}
	return nil, false
}

func asArray(v any) ([]any, bool) {
	switch t := v.(type) {
	case bson.A:
		return t, true
	case []any:
		return t, true
	case []bson.M:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out, true
	}
	return nil, false
}

// operators returns want as a document of query operators such as
// {$gt: 10, $lt: 50}.
func operators(want any) (bson.D, bool) {
	d, ok := want.(bson.D)
	if !ok || len(d) == 0 {
		return nil, false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, false
		}
	}
	return d, true
}

func evalOps(v any, ops bson.D) bool {
	for _, op := range ops {
		var ok bool
		switch op.Key {
		case "$eq":
			ok = Equal(v, op.Value)
		case "$ne":
			ok = !Equal(v, op.Value)
		case "$gt", "$gte", "$lt", "$lte":
			c, comparable := compare(v, op.Value)
			if comparable {
				switch op.Key {
				case "$gt":
					ok = c > 0
				case "$gte":
					ok = c >= 0
				case "$lt":
					ok = c < 0
				default:
					ok = c <= 0
				}
			}
		case "$in":
			arr, _ := asArray(op.Value)
			for _, el := range arr {
				if Equal(v, el) {
					ok = true
					break
				}
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// compare orders numbers against numbers and strings against strings.
func compare(a, b any) (int, bool) {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

// Equal compares two BSON values. Numbers compare by value across the
// integer and float kinds; everything else uses deep equality.
func Equal(a, b any) bool {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return fa == fb
		}
		return false
	}
	if oa, ok := a.(primitive.ObjectID); ok {
		ob, ok := b.(primitive.ObjectID)
		return ok && oa == ob
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func clone(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(bson.M, len(t))
		for k, vv := range t {
			out[k] = clone(vv)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = clone(vv)
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i, vv := range t {
			out[i] = clone(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = clone(vv)
		}
		return out
	default:
		return v
	}
}
