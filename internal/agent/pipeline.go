// Package agent turns natural-language questions about the procurement
// collection into validated, executed aggregation pipelines and
// natural-language answers, retrying generation with error feedback.
package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Pipeline is an ordered sequence of aggregation stages. Each stage is a
// single-key document whose key names the stage operator ($match, $group, ...).
type Pipeline []bson.D

// ParsePipeline decodes the model's raw output into a Pipeline. The input
// must be exactly a JSON array of stage objects; key order inside each stage
// is preserved (it is significant for operators like $sort).
func ParsePipeline(raw string) (Pipeline, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("output must be a JSON array of pipeline stages")
	}

	var pipeline Pipeline
	for dec.More() {
		stage, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		doc, ok := stage.(bson.D)
		if !ok {
			return nil, fmt.Errorf("stage %d is not an object", len(pipeline))
		}
		pipeline = append(pipeline, doc)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading array end: %w", err)
	}
	// Reject trailing garbage after the array.
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected content after pipeline array")
	}

	if len(pipeline) == 0 {
		return nil, fmt.Errorf("pipeline array is empty")
	}
	return pipeline, nil
}

// decodeValue reads one JSON value from dec, producing bson.D for objects
// (keeping key order) and bson.A for arrays. Integral numbers become int64,
// the rest float64.
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			doc := bson.D{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				doc = append(doc, bson.E{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return doc, nil
		case '[':
			arr := bson.A{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t)
		}
		return f, nil
	default:
		// string, bool, nil
		return t, nil
	}
}

// Operator returns the operator of a stage, the key of its single entry.
// Empty when the stage is malformed.
func stageOperator(stage bson.D) string {
	if len(stage) != 1 {
		return ""
	}
	return stage[0].Key
}

// HasStage reports whether any stage in the pipeline uses the given operator.
func (p Pipeline) HasStage(op string) bool {
	for _, stage := range p {
		for _, e := range stage {
			if e.Key == op {
				return true
			}
		}
	}
	return false
}

// WithLimit returns the pipeline with a $limit stage appended when none is
// present. The receiver is never mutated; generated pipelines are shared
// between the dry-run and the real execution.
func (p Pipeline) WithLimit(n int) Pipeline {
	if p.HasStage("$limit") {
		return p
	}
	out := make(Pipeline, len(p), len(p)+1)
	copy(out, p)
	return append(out, bson.D{{Key: "$limit", Value: n}})
}

// MarshalJSON renders the pipeline as the JSON array it was parsed from,
// preserving stage and key order. A nil pipeline marshals as null.
func (p Pipeline) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, stage := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := json.Marshal(Serialize(stage))
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// String renders the pipeline as compact JSON for prompts and logs.
func (p Pipeline) String() string {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%v", []bson.D(p))
	}
	return string(b)
}
