// Package mongo adapts a *mongo.Collection to handle.Collection.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unkn0wn-root/docsource/handle"
)

type Collection struct {
	c *mongo.Collection
}

var _ handle.Collection = (*Collection)(nil)

func Wrap(c *mongo.Collection) *Collection { return &Collection{c: c} }

// Connect opens a client and returns the named collection. The caller owns
// the client through Client().Disconnect.
func Connect(ctx context.Context, uri, database, collection string) (*Collection, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return Wrap(client.Database(database).Collection(collection)), nil
}

func (c *Collection) Name() string { return c.c.Name() }

func (c *Collection) Client() *mongo.Client { return c.c.Database().Client() }

// FindByIDs issues one {_id: {$in: ids}} query.
func (c *Collection) FindByIDs(ctx context.Context, ids []any) ([]bson.M, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return c.find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
}

func (c *Collection) Find(ctx context.Context, filter bson.D) ([]bson.M, error) {
	return c.find(ctx, filter)
}

func (c *Collection) find(ctx context.Context, filter bson.D) ([]bson.M, error) {
	cur, err := c.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
