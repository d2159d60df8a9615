package handle

import "errors"

var errNilCollection = errors.New("docsource: model requires a collection")

// Model is a declarative model built from a schema.
type Model struct {
	name   string
	schema Schema
	coll   Collection
}

var _ Modeler = (*Model)(nil)

func NewModel(name string, schema Schema, coll Collection) (*Model, error) {
	if isNil(coll) {
		return nil, errNilCollection
	}
	return &Model{name: name, schema: schema, coll: coll}, nil
}

func (m *Model) ModelName() string      { return m.name }
func (m *Model) Collection() Collection { return m.coll }
func (m *Model) Schema() Schema         { return m.schema }

// ModelBase is embedded by class-based models:
//
//	type UserModel struct{ handle.ModelBase }
//
//	users := &UserModel{}
//	_ = handle.Define(users, "User", schema, coll)
//
// An unbound ModelBase classifies as invalid.
type ModelBase struct {
	name   string
	schema Schema
	coll   Collection
}

func (b *ModelBase) ModelName() string      { return b.name }
func (b *ModelBase) Collection() Collection { return b.coll }
func (b *ModelBase) Schema() Schema         { return b.schema }

func (b *ModelBase) bind(name string, schema Schema, coll Collection) {
	b.name, b.schema, b.coll = name, schema, coll
}

type binder interface {
	bind(name string, schema Schema, coll Collection)
}

// Define binds a struct embedding ModelBase to a schema and a collection.
func Define(m binder, name string, schema Schema, coll Collection) error {
	if isNil(m) {
		return ErrInvalidHandle
	}
	if isNil(coll) {
		return errNilCollection
	}
	m.bind(name, schema, coll)
	return nil
}
