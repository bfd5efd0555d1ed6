package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// fakeEngine records aggregation calls and returns scripted results.
type fakeEngine struct {
	results   []bson.D
	err       error
	pipelines []Pipeline
	options   []EngineOptions
}

func (f *fakeEngine) Aggregate(ctx context.Context, pipeline Pipeline, opts EngineOptions) ([]bson.D, error) {
	f.pipelines = append(f.pipelines, pipeline)
	f.options = append(f.options, opts)
	return f.results, f.err
}

func mustParse(t *testing.T, raw string) Pipeline {
	t.Helper()
	p, err := ParsePipeline(raw)
	if err != nil {
		t.Fatalf("ParsePipeline(%s): %v", raw, err)
	}
	return p
}

func TestValidate_StructuralErrors(t *testing.T) {
	engine := &fakeEngine{}
	v := NewValidator(engine)

	tests := []struct {
		name     string
		pipeline Pipeline
		wantErr  string
	}{
		{"empty", Pipeline{}, "Pipeline cannot be empty"},
		{
			"two operators",
			Pipeline{bson.D{{Key: "$match", Value: bson.D{}}, {Key: "$limit", Value: 1}}},
			"Stage 0 must have exactly one operator",
		},
		{
			"no sigil",
			Pipeline{bson.D{{Key: "$match", Value: bson.D{}}}, bson.D{{Key: "limit", Value: 1}}},
			"Stage 1: 'limit' is not a valid aggregation operator (must start with $)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, errMsg := v.Validate(context.Background(), tt.pipeline)
			if ok {
				t.Fatal("Validate() = true, want false")
			}
			if errMsg != tt.wantErr {
				t.Errorf("error = %q, want %q", errMsg, tt.wantErr)
			}
		})
	}

	if len(engine.pipelines) != 0 {
		t.Error("structurally invalid pipelines must not reach the engine")
	}
}

func TestValidate_DryRunAppendsCap(t *testing.T) {
	engine := &fakeEngine{}
	v := NewValidator(engine)

	ok, errMsg := v.Validate(context.Background(), mustParse(t, `[{"$count": "total"}]`))
	if !ok {
		t.Fatalf("Validate() = false, error %q", errMsg)
	}

	if len(engine.pipelines) != 1 {
		t.Fatalf("engine calls = %d, want 1", len(engine.pipelines))
	}
	ran := engine.pipelines[0]
	last := ran[len(ran)-1]
	if last[0].Key != "$limit" || last[0].Value != 1 {
		t.Errorf("dry-run cap = %v, want $limit 1", last)
	}

	opts := engine.options[0]
	if opts.MaxTime != dryRunMaxTime {
		t.Errorf("MaxTime = %v, want %v", opts.MaxTime, dryRunMaxTime)
	}
	if !opts.DisallowDiskUse {
		t.Error("dry-run must disable disk use")
	}
}

func TestValidate_KeepsExistingCap(t *testing.T) {
	engine := &fakeEngine{}
	v := NewValidator(engine)

	v.Validate(context.Background(), mustParse(t, `[{"$match": {"a": 1}}, {"$limit": 500}]`))

	ran := engine.pipelines[0]
	if len(ran) != 2 {
		t.Fatalf("dry-run pipeline has %d stages, want 2", len(ran))
	}
	if ran[1][0].Value != int64(500) {
		t.Errorf("existing $limit = %v, want 500", ran[1][0].Value)
	}
}

func TestValidate_EngineErrorSurfacedVerbatim(t *testing.T) {
	engine := &fakeEngine{
		err: mongo.CommandError{Code: 40324, Message: "Unrecognized pipeline stage name: '$foo'"},
	}
	v := NewValidator(engine)

	ok, errMsg := v.Validate(context.Background(), mustParse(t, `[{"$foo": 1}]`))
	if ok {
		t.Fatal("Validate() = true, want false")
	}
	if !strings.Contains(errMsg, "Unrecognized pipeline stage name: '$foo'") {
		t.Errorf("engine message not surfaced: %q", errMsg)
	}
	if !strings.HasPrefix(errMsg, "Invalid pipeline:") {
		t.Errorf("error = %q, want Invalid pipeline prefix", errMsg)
	}
}

func TestValidate_TimeLimitIsNotInvalid(t *testing.T) {
	codeErr := mongo.CommandError{Code: 50, Name: "MaxTimeMSExpired", Message: "operation exceeded time limit"}
	messageErr := errors.New("operation exceeded time limit somewhere downstream")

	for name, err := range map[string]error{"code 50": codeErr, "message match": messageErr} {
		t.Run(name, func(t *testing.T) {
			v := NewValidator(&fakeEngine{err: err})
			ok, errMsg := v.Validate(context.Background(), mustParse(t, `[{"$group": {"_id": "$a"}}]`))
			if !ok {
				t.Errorf("dry-run timeout must be treated as valid, got error %q", errMsg)
			}
		})
	}
}
