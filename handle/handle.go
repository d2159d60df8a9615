// Package handle classifies the storage handles a data source can wrap.
//
// Two shapes are supported:
//   - a raw driver collection (anything implementing Collection)
//   - an object model (anything implementing Modeler), built either
//     declaratively with NewModel or by embedding ModelBase in a struct
//     and binding it with Define.
//
// Both model constructions expose the same capability set and are classified
// the same way. Classify normalizes every shape into an Info so callers never
// re-inspect the handle.
package handle

import (
	"context"
	"errors"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
)

var ErrInvalidHandle = errors.New("docsource: handle is neither a collection nor a model")

// Collection is the driver-level capability set the data source consumes.
// Implementations must be safe for concurrent use.
type Collection interface {
	// Name is the driver-level collection name.
	Name() string

	// FindByIDs fetches every document whose _id is in ids, in any order.
	// Missing ids are simply absent from the result.
	FindByIDs(ctx context.Context, ids []any) ([]bson.M, error)

	// Find returns every document matching the field predicates in filter.
	// Field paths may use dotted notation for nested documents and arrays.
	Find(ctx context.Context, filter bson.D) ([]bson.M, error)
}

// Modeler is the capability set shared by declarative and class-based models.
type Modeler interface {
	ModelName() string
	Collection() Collection
	Schema() Schema
}

// Schema describes the fields a model declares, e.g. {"name": "string"}.
// Validation against the schema is left to the driver layer.
type Schema struct {
	Fields map[string]string
}

type Kind uint8

const (
	KindInvalid Kind = iota
	KindCollection
	KindModel      // declarative, built with NewModel
	KindClassModel // struct embedding ModelBase
)

func (k Kind) String() string {
	switch k {
	case KindCollection:
		return "collection"
	case KindModel:
		return "model"
	case KindClassModel:
		return "class_model"
	default:
		return "invalid"
	}
}

// Info is the normalized view of a handle.
type Info struct {
	Kind                Kind
	IsModel             bool
	IsCollectionOrModel bool
	Collection          Collection // underlying driver collection
	CollectionName      string
	ModelName           string // empty for raw collections
}

// Classify inspects h and never panics. Nil, typed-nil and unrecognised
// values report IsCollectionOrModel=false.
func Classify(h any) Info {
	if isNil(h) {
		return Info{}
	}
	switch v := h.(type) {
	case Modeler:
		coll := v.Collection()
		if isNil(coll) {
			return Info{} // unbound model
		}
		kind := KindClassModel
		if _, ok := v.(*Model); ok {
			kind = KindModel
		}
		return Info{
			Kind:                kind,
			IsModel:             true,
			IsCollectionOrModel: true,
			Collection:          coll,
			CollectionName:      coll.Name(),
			ModelName:           v.ModelName(),
		}
	case Collection:
		return Info{
			Kind:                KindCollection,
			IsCollectionOrModel: true,
			Collection:          v,
			CollectionName:      v.Name(),
		}
	}
	return Info{}
}

// Resolve is Classify with an error for unrecognised handles.
func Resolve(h any) (Info, error) {
	info := Classify(h)
	if !info.IsCollectionOrModel {
		return info, ErrInvalidHandle
	}
	return info, nil
}

func IsModel(h any) bool             { return Classify(h).IsModel }
func IsCollectionOrModel(h any) bool { return Classify(h).IsCollectionOrModel }

// GetCollection returns the driver-level collection behind h, or nil.
func GetCollection(h any) Collection { return Classify(h).Collection }

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
