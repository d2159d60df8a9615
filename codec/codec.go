// Package codec converts cached values to and from bytes.
//
// Records are BSON documents and BSON is their default codec. Msgpack and
// CBOR carry a Record as an embedded BSON byte string, so driver types
// (ObjectID, Decimal128, dates) survive them too. JSON flattens driver types
// to their natural encodings; use it for caches read by non-Go consumers.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
