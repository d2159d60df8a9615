package codec

import "go.mongodb.org/mongo-driver/bson"

// BSON serializes values with the MongoDB driver's default registry.
// V must marshal to a document (a struct, a map, bson.D or a type
// implementing bson.Marshaler). The zero value is ready to use.
type BSON[V any] struct{}

var _ Codec[bson.M] = BSON[bson.M]{}

func (BSON[V]) Encode(v V) ([]byte, error) { return bson.Marshal(v) }

func (BSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := bson.Unmarshal(b, &v)
	return v, err
}
