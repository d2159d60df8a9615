package docsource

import (
	"encoding/json"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/unkn0wn-root/docsource/internal/keys"
)

// Record is a fetched document.
//
// Records returned through a model-shaped handle are decorated with a string
// identifier accessor: ID returns the text form of _id (the hex string for
// ObjectIDs). Records from a raw collection are not decorated and ID reports
// ok=false; RawID always returns _id exactly as the driver produced it.
type Record struct {
	doc       bson.M
	decorated bool
}

// NewRecord wraps a fetched document. The record starts undecorated.
func NewRecord(doc bson.M) Record { return Record{doc: doc} }

// Doc returns the underlying document. Callers own it.
func (r Record) Doc() bson.M { return r.doc }

// IsZero reports whether r holds no document.
func (r Record) IsZero() bool { return r.doc == nil }

// RawID returns _id as the driver produced it.
func (r Record) RawID() any { return r.doc["_id"] }

// ID is the identifier accessor available on model-shaped records.
func (r Record) ID() (string, bool) {
	if !r.decorated {
		return "", false
	}
	s, err := keys.IDString(r.RawID())
	if err != nil {
		return "", false
	}
	return s, true
}

// Decorated reports whether the record came through a model-shaped handle.
func (r Record) Decorated() bool { return r.decorated }

// Get resolves a dotted path through nested documents.
func (r Record) Get(path string) (any, bool) {
	var cur any = r.doc
	for _, part := range strings.Split(path, ".") {
		var m map[string]any
		switch t := cur.(type) {
		case bson.M:
			m = t
		case map[string]any:
			m = t
		case bson.D:
			m = t.Map()
		default:
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// String returns the field at path when it holds a string.
func (r Record) String(path string) string {
	v, _ := r.Get(path)
	s, _ := v.(string)
	return s
}

// Decode unmarshals the document into v, typically a struct with bson tags.
func (r Record) Decode(v any) error {
	b, err := bson.Marshal(r.doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(b, v)
}

func (r Record) MarshalBSON() ([]byte, error) {
	if r.doc == nil {
		return bson.Marshal(bson.M{})
	}
	return bson.Marshal(r.doc)
}

func (r *Record) UnmarshalBSON(b []byte) error {
	var doc bson.M
	if err := bson.Unmarshal(b, &doc); err != nil {
		return err
	}
	r.doc = doc
	return nil
}

// MarshalBinary encodes the document as BSON; it lets byte-oriented codecs
// (msgpack, CBOR) carry records without losing driver types.
func (r Record) MarshalBinary() ([]byte, error) { return r.MarshalBSON() }

func (r *Record) UnmarshalBinary(b []byte) error { return r.UnmarshalBSON(b) }

func (r Record) MarshalJSON() ([]byte, error) { return json.Marshal(r.doc) }

func (r *Record) UnmarshalJSON(b []byte) error {
	var doc bson.M
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	r.doc = doc
	return nil
}

func (r Record) clone() Record {
	return Record{doc: cloneDoc(r.doc), decorated: r.decorated}
}

func cloneDoc(m bson.M) bson.M {
	if m == nil {
		return nil
	}
	out := make(bson.M, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return cloneDoc(t)
	case map[string]any:
		return map[string]any(cloneDoc(t))
	case bson.D:
		out := make(bson.D, len(t))
		for i, e := range t {
			out[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	}
	return v
}
