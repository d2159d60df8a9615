package handle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/docsource/driver/memory"
	"github.com/unkn0wn-root/docsource/handle"
)

type userModel struct{ handle.ModelBase }

func TestClassifyCollection(t *testing.T) {
	coll := memory.New("users")
	info := handle.Classify(coll)

	assert.Equal(t, handle.KindCollection, info.Kind)
	assert.True(t, info.IsCollectionOrModel)
	assert.False(t, info.IsModel)
	assert.Equal(t, "users", info.CollectionName)
	assert.Same(t, coll, info.Collection)
	assert.Empty(t, info.ModelName)
}

func TestClassifyModel(t *testing.T) {
	coll := memory.New("users")
	m, err := handle.NewModel("User", handle.Schema{Fields: map[string]string{"name": "string"}}, coll)
	require.NoError(t, err)

	info := handle.Classify(m)
	assert.Equal(t, handle.KindModel, info.Kind)
	assert.True(t, info.IsModel)
	assert.True(t, info.IsCollectionOrModel)
	assert.Equal(t, "User", info.ModelName)
	assert.Same(t, coll, handle.GetCollection(m))
	assert.Equal(t, "string", m.Schema().Fields["name"])
}

func TestClassifyClassModel(t *testing.T) {
	coll := memory.New("users")
	um := &userModel{}
	assert.False(t, handle.IsCollectionOrModel(um), "unbound class model")

	require.NoError(t, handle.Define(um, "User", handle.Schema{}, coll))
	info := handle.Classify(um)
	assert.Equal(t, handle.KindClassModel, info.Kind)
	assert.True(t, handle.IsModel(um))
	assert.Equal(t, "users", info.CollectionName)
	assert.Equal(t, "class_model", info.Kind.String())
}

func TestClassifyInvalid(t *testing.T) {
	var nilColl *memory.Collection
	for name, h := range map[string]any{
		"nil":        nil,
		"typed nil":  nilColl,
		"string":     "users",
		"map":        map[string]any{"name": "users"},
		"struct":     struct{}{},
		"int":        42,
		"nil model":  (*handle.Model)(nil),
		"class zero": userModel{},
	} {
		t.Run(name, func(t *testing.T) {
			info := handle.Classify(h)
			assert.False(t, info.IsCollectionOrModel)
			assert.False(t, info.IsModel)
			assert.Nil(t, info.Collection)
			assert.Equal(t, handle.KindInvalid, info.Kind)

			_, err := handle.Resolve(h)
			assert.ErrorIs(t, err, handle.ErrInvalidHandle)
		})
	}
}

func TestModelRequiresCollection(t *testing.T) {
	_, err := handle.NewModel("User", handle.Schema{}, nil)
	require.Error(t, err)
	require.Error(t, handle.Define(&userModel{}, "User", handle.Schema{}, nil))
}
