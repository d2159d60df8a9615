package codec

import (
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type user struct {
	ID   string `json:"id" bson:"id" msgpack:"id" cbor:"id"`
	Name string `json:"name" bson:"name" msgpack:"name" cbor:"name"`
}

func TestCodecsRoundTripStruct(t *testing.T) {
	in := user{ID: "1", Name: "Ada"}
	codecs := map[string]Codec[user]{
		"bson":    BSON[user]{},
		"json":    JSON[user]{},
		"msgpack": Msgpack[user]{},
		"cbor":    MustCBOR[user](true),
		"limit":   Limit[user]{Inner: JSON[user]{}, MaxDecode: 1024},
	}
	for name, c := range codecs {
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%s encode: %v", name, err)
		}
		out, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%s decode: %v", name, err)
		}
		if out != in {
			t.Fatalf("%s: got %+v want %+v", name, out, in)
		}
	}
}

func TestBSONKeepsObjectID(t *testing.T) {
	oid := primitive.NewObjectID()
	b, err := BSON[bson.M]{}.Encode(bson.M{"_id": oid, "nested": bson.A{bson.M{"_id": oid}}})
	if err != nil {
		t.Fatal(err)
	}
	doc, err := BSON[bson.M]{}.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := doc["_id"].(primitive.ObjectID); !ok || got != oid {
		t.Fatalf("_id = %#v, want ObjectID %s", doc["_id"], oid.Hex())
	}
}

func TestJSONFlattensObjectID(t *testing.T) {
	oid := primitive.NewObjectID()
	b, err := JSON[map[string]any]{}.Encode(map[string]any{"_id": oid})
	if err != nil {
		t.Fatal(err)
	}
	doc, err := JSON[map[string]any]{}.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if doc["_id"] != oid.Hex() {
		t.Fatalf("_id = %#v, want hex string", doc["_id"])
	}
}

func TestCBORDeterministicIsStable(t *testing.T) {
	c := MustCBOR[map[string]any](true)
	a, _ := c.Encode(map[string]any{"b": 1, "a": 2, "c": 3})
	b, _ := c.Encode(map[string]any{"c": 3, "a": 2, "b": 1})
	if string(a) != string(b) {
		t.Fatalf("deterministic CBOR differs for equal maps")
	}
	m, err := c.Decode(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 3 {
		t.Fatalf("decoded %v", m)
	}
}

func TestLimitRejectsOversizedPayload(t *testing.T) {
	c := Limit[user]{Inner: JSON[user]{}, MaxDecode: 8}
	b, err := c.Encode(user{ID: "1", Name: strings.Repeat("x", 32)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Decode(b); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestBytesIsIdentity(t *testing.T) {
	in := []byte{1, 2, 3}
	out, _ := Bytes{}.Decode(in)
	if &out[0] != &in[0] {
		t.Fatalf("Bytes should not copy")
	}
}
