package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestInsertAssignsObjectIDs(t *testing.T) {
	c := New("users")
	ids := c.Insert(bson.M{"name": "Ada"}, bson.M{"_id": 7, "name": "Bob"})
	require.Len(t, ids, 2)
	assert.IsType(t, primitive.ObjectID{}, ids[0])
	assert.Equal(t, 7, ids[1])
}

func TestFindByIDsReturnsStorageOrderAndCopies(t *testing.T) {
	ctx := context.Background()
	c := New("users")
	ids := c.Insert(bson.M{"name": "a"}, bson.M{"name": "b"}, bson.M{"name": "c"})

	docs, err := c.FindByIDs(ctx, []any{ids[2], ids[0], primitive.NewObjectID()})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0]["name"])
	assert.Equal(t, "c", docs[1]["name"])
	assert.EqualValues(t, 1, c.FindByIDsCalls())
	assert.Len(t, c.LastIDs(), 3)

	docs[0]["name"] = "mutated"
	again, _ := c.FindByIDs(ctx, []any{ids[0]})
	assert.Equal(t, "a", again[0]["name"])
}

func TestFindMatchesNestedArrays(t *testing.T) {
	x := primitive.NewObjectID()
	c := New("users")
	c.Insert(
		bson.M{"name": "Bob", "nested": bson.A{bson.M{"_id": x}}},
		bson.M{"name": "Eve", "nested": bson.A{bson.M{"_id": primitive.NewObjectID()}}},
	)

	docs, err := c.Find(context.Background(), bson.D{{Key: "nested._id", Value: x}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Bob", docs[0]["name"])
}

func TestFindOperators(t *testing.T) {
	c := New("users")
	c.Insert(
		bson.M{"name": "a", "age": int32(5)},
		bson.M{"name": "b", "age": int64(20)},
		bson.M{"name": "c", "age": 60.0},
		bson.M{"name": "d"},
	)
	names := func(filter bson.D) []string {
		docs, err := c.Find(context.Background(), filter)
		require.NoError(t, err)
		var out []string
		for _, d := range docs {
			out = append(out, d["name"].(string))
		}
		return out
	}

	assert.Equal(t, []string{"b"}, names(bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 10}, {Key: "$lt", Value: 50}}}}))
	assert.Equal(t, []string{"a", "c"}, names(bson.D{{Key: "age", Value: bson.D{{Key: "$in", Value: bson.A{5, 60}}}}}))
	assert.Equal(t, []string{"a", "c", "d"}, names(bson.D{{Key: "age", Value: bson.D{{Key: "$ne", Value: 20}}}}))
	assert.Equal(t, []string{"d"}, names(bson.D{{Key: "age", Value: nil}}))
}

func TestNumbersCompareAcrossTypes(t *testing.T) {
	assert.True(t, Equal(int32(3), 3.0))
	assert.True(t, Equal(int64(3), 3))
	assert.True(t, Equal(int16(7), 7.0))
	assert.True(t, Equal(float32(7), uint8(7)))
	assert.False(t, Equal(3, "3"))
}

func TestFailWithAndReplace(t *testing.T) {
	ctx := context.Background()
	c := New("users")
	ids := c.Insert(bson.M{"name": "a"})

	boom := errors.New("down")
	c.FailWith(boom)
	_, err := c.Find(ctx, bson.D{{Key: "name", Value: "a"}})
	assert.ErrorIs(t, err, boom)
	c.FailWith(nil)

	assert.True(t, c.Replace(bson.M{"_id": ids[0], "name": "z"}))
	assert.False(t, c.Replace(bson.M{"_id": primitive.NewObjectID()}))
	docs, err := c.FindByIDs(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, "z", docs[0]["name"])
}
