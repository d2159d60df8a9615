package codec

// Bytes is an identity codec for values that are already encoded, for
// instance documents fetched as raw BSON.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }
