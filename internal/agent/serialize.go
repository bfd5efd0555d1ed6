package agent

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is a result row: an ordered list of fields that marshals to a
// JSON object preserving insertion order. Values are always JSON-safe after
// Serialize.
type Document []Field

// Field is one key/value entry of a Document.
type Field struct {
	Key   string
	Value any
}

// MarshalJSON writes the document as an object with fields in order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Serialize converts a BSON document into a JSON-safe Document:
// ObjectIDs become hex strings, dates become RFC 3339 strings, NaN becomes
// null, and infinities become the strings "Infinity"/"-Infinity".
// Serialize is idempotent: applying it to an already-serialized value is a
// no-op.
func Serialize(doc bson.D) Document {
	out := make(Document, 0, len(doc))
	for _, e := range doc {
		out = append(out, Field{Key: e.Key, Value: sanitize(e.Value)})
	}
	return out
}

func sanitize(v any) any {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return val.String()
	case float64:
		return sanitizeFloat(val)
	case float32:
		return sanitizeFloat(float64(val))
	case bson.D:
		return Serialize(val)
	case Document:
		for i := range val {
			val[i].Value = sanitize(val[i].Value)
		}
		return val
	case bson.A:
		return sanitizeSlice(val)
	case []any:
		return sanitizeSlice(val)
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = sanitize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = sanitize(item)
		}
		return out
	default:
		return v
	}
}

func sanitizeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return nil
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}

func sanitizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, item := range in {
		out[i] = sanitize(item)
	}
	return out
}
