// Package keys derives cache keys for identifier and field-set lookups.
//
//	<ns>:id:<text>          - identifier lookups
//	<ns>:fields:<ejson>     - field-set lookups (sorted paths, relaxed extended JSON)
//	<ns>:fields:h:<sha256>  - field-set lookups whose serialization is too long
package keys

import (
	"crypto/sha256"
	"encoding"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/go-openapi/strfmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxInline is the longest field-set serialization embedded verbatim in a key.
const MaxInline = 256

var (
	ErrInvalidQuery = errors.New("docsource: invalid field-set query")
	ErrInvalidID    = errors.New("docsource: invalid identifier")
)

// ForID returns the key for a single identifier.
func ForID(ns string, id any) (string, error) {
	s, err := IDString(id)
	if err != nil {
		return "", err
	}
	return ns + ":id:" + s, nil
}

// ForFields returns the key for a field-set. The insertion order of fields
// never affects the result.
func ForFields(ns string, fields map[string]any) (string, error) {
	d, err := Filter(fields)
	if err != nil {
		return "", err
	}
	b, err := bson.MarshalExtJSON(d, false, false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if len(b) > MaxInline {
		sum := sha256.Sum256(b)
		return ns + ":fields:h:" + hex.EncodeToString(sum[:16]), nil
	}
	return ns + ":fields:" + string(b), nil
}

// Filter converts fields to a filter document with paths in ascending order.
// Nested maps are normalized the same way.
func Filter(fields map[string]any) (bson.D, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty field-set", ErrInvalidQuery)
	}
	paths := make([]string, 0, len(fields))
	for p := range fields {
		if p == "" {
			return nil, fmt.Errorf("%w: empty field path", ErrInvalidQuery)
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	d := make(bson.D, 0, len(paths))
	for _, p := range paths {
		d = append(d, bson.E{Key: p, Value: normalize(fields[p])})
	}
	return d, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return sortedDoc(t)
	case map[string]any:
		return sortedDoc(t)
	case bson.A:
		out := make(bson.A, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	case []any:
		out := make(bson.A, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	case strfmt.ObjectId:
		return primitive.ObjectID(t)
	}
	return v
}

func sortedDoc(m map[string]any) bson.D {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	d := make(bson.D, 0, len(ks))
	for _, k := range ks {
		d = append(d, bson.E{Key: k, Value: normalize(m[k])})
	}
	return d
}

// IDString is the canonical text form of an identifier. Binary identifiers
// use their text form, never their byte layout.
func IDString(id any) (string, error) {
	switch v := id.(type) {
	case nil:
		return "", fmt.Errorf("%w: nil", ErrInvalidID)
	case string:
		if v == "" {
			return "", fmt.Errorf("%w: empty string", ErrInvalidID)
		}
		return v, nil
	case primitive.ObjectID:
		return v.Hex(), nil
	case *primitive.ObjectID:
		if v == nil {
			return "", fmt.Errorf("%w: nil ObjectID", ErrInvalidID)
		}
		return v.Hex(), nil
	case strfmt.ObjectId:
		return primitive.ObjectID(v).Hex(), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return floatString(float64(v))
	case float64:
		return floatString(v)
	case encoding.TextMarshaler:
		b, err := v.MarshalText()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidID, err)
		}
		return string(b), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidID, id)
}

// floatString renders integral floats like integers, so 7.0 and 7 share a key.
func floatString(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v", ErrInvalidID, f)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}
