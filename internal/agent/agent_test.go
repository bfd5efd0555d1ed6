package agent

import (
	"context"
	"strings"
	"testing"
)

// scriptedGenerator returns canned Generations in order.
type scriptedGenerator struct {
	gens  []Generation
	calls []GenerateRequest
}

func (g *scriptedGenerator) Generate(ctx context.Context, req GenerateRequest) Generation {
	g.calls = append(g.calls, req)
	i := len(g.calls) - 1
	if i >= len(g.gens) {
		i = len(g.gens) - 1
	}
	return g.gens[i]
}

type verdict struct {
	ok  bool
	err string
}

type scriptedValidator struct {
	verdicts []verdict
	calls    []Pipeline
}

func (v *scriptedValidator) Validate(ctx context.Context, p Pipeline) (bool, string) {
	v.calls = append(v.calls, p)
	i := len(v.calls) - 1
	if i >= len(v.verdicts) {
		i = len(v.verdicts) - 1
	}
	return v.verdicts[i].ok, v.verdicts[i].err
}

type execResult struct {
	rows []Document
	err  string
}

type scriptedExecutor struct {
	results []execResult
	calls   []Pipeline
	limits  []int
}

func (e *scriptedExecutor) Execute(ctx context.Context, p Pipeline, limit int) ([]Document, string) {
	e.calls = append(e.calls, p)
	e.limits = append(e.limits, limit)
	i := len(e.calls) - 1
	if i >= len(e.results) {
		i = len(e.results) - 1
	}
	return e.results[i].rows, e.results[i].err
}

type stubSummarizer struct {
	answer string
	id     string
	called bool

	gotQuestion string
	gotRows     []Document
	gotVerb     string
	gotPrevID   string
}

func (s *stubSummarizer) Summarize(ctx context.Context, question string, p Pipeline, rows []Document, verbosity, previousResponseID string) (string, string) {
	s.called = true
	s.gotQuestion = question
	s.gotRows = rows
	s.gotVerb = verbosity
	s.gotPrevID = previousResponseID
	return s.answer, s.id
}

func newTestAgent(g PipelineGenerator, v PipelineValidator, e PipelineExecutor, s AnswerSummarizer) *Agent {
	return New(g, v, e, s, Options{MaxAttempts: 3, SchemaDescription: "schema"})
}

func TestQuery_CountHappyPath(t *testing.T) {
	countPipeline := mustParse(t, `[{"$count": "total"}]`)
	gen := &scriptedGenerator{gens: []Generation{
		{Pipeline: countPipeline, ResponseID: "resp_gen", ReasoningSummary: "count everything"},
	}}
	val := &scriptedValidator{verdicts: []verdict{{ok: true}}}
	exec := &scriptedExecutor{results: []execResult{
		{rows: []Document{{{Key: "total", Value: int64(346000)}}}},
	}}
	sum := &stubSummarizer{answer: "There are 346000 records.", id: "resp_ans"}

	a := newTestAgent(gen, val, exec, sum)
	res := a.Query(context.Background(), Question{Text: "count all records"})

	if !res.Success {
		t.Fatalf("Success = false, error %q", res.Error)
	}
	if res.Answer != "There are 346000 records." {
		t.Errorf("Answer = %q", res.Answer)
	}
	if res.ResultCount != 1 {
		t.Errorf("ResultCount = %d, want 1", res.ResultCount)
	}
	if res.Pipeline == nil || stageOperator(res.Pipeline[0]) != "$count" {
		t.Errorf("Pipeline = %v", res.Pipeline)
	}
	if res.ResponseID != "resp_ans" {
		t.Errorf("ResponseID = %q, want the summarizer's", res.ResponseID)
	}
	if res.ReasoningSummary != "count everything" {
		t.Errorf("ReasoningSummary = %q", res.ReasoningSummary)
	}
	if res.Error != "" {
		t.Errorf("Error = %q, want empty", res.Error)
	}
	if res.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	// The answer call chains to the pipeline call's continuity id.
	if sum.gotPrevID != "resp_gen" {
		t.Errorf("summarizer previousResponseID = %q, want resp_gen", sum.gotPrevID)
	}
}

func TestQuery_ThreeAttemptRecovery(t *testing.T) {
	good := mustParse(t, `[{"$group": {"_id": "$dept"}}, {"$limit": 10}]`)
	bad := mustParse(t, `[{"$group": {"_id": "$bogus_field"}}]`)

	gen := &scriptedGenerator{gens: []Generation{
		{ResponseID: "resp_1", Err: "failed to parse pipeline: output is not valid JSON"},
		{Pipeline: bad, ResponseID: "resp_2"},
		{Pipeline: good, ResponseID: "resp_3"},
	}}
	val := &scriptedValidator{verdicts: []verdict{
		{ok: false, err: "Invalid pipeline: Unknown field 'bogus_field'"},
		{ok: true},
	}}
	exec := &scriptedExecutor{results: []execResult{
		{rows: []Document{{{Key: "_id", Value: "Health"}}}},
	}}
	sum := &stubSummarizer{answer: "Health spent the most.", id: "resp_4"}

	a := newTestAgent(gen, val, exec, sum)
	res := a.Query(context.Background(), Question{Text: "top departments"})

	if !res.Success {
		t.Fatalf("Success = false after recovery, error %q", res.Error)
	}
	if len(gen.calls) != 3 {
		t.Fatalf("generator calls = %d, want 3", len(gen.calls))
	}

	// Attempt 2 carries attempt 1's parse error and continuity id.
	if got := gen.calls[1].PreviousError; !strings.Contains(got, "not valid JSON") {
		t.Errorf("attempt 2 feedback = %q", got)
	}
	if gen.calls[1].PreviousResponseID != "resp_1" {
		t.Errorf("attempt 2 continuity = %q, want resp_1", gen.calls[1].PreviousResponseID)
	}

	// Attempt 3 carries the validator's engine error verbatim.
	if got := gen.calls[2].PreviousError; got != "Invalid pipeline: Unknown field 'bogus_field'" {
		t.Errorf("attempt 3 feedback = %q", got)
	}
	if gen.calls[2].PreviousResponseID != "resp_2" {
		t.Errorf("attempt 3 continuity = %q, want resp_2", gen.calls[2].PreviousResponseID)
	}

	// The rejected pipeline was never executed.
	if len(exec.calls) != 1 {
		t.Fatalf("executor calls = %d, want 1", len(exec.calls))
	}
	if stageOperator(exec.calls[0][0]) != "$group" {
		t.Errorf("executed pipeline starts with %q, want $group", stageOperator(exec.calls[0][0]))
	}
}

func TestQuery_AllAttemptsStructurallyInvalid(t *testing.T) {
	bad := Pipeline{{{Key: "match", Value: 1}}}
	gen := &scriptedGenerator{gens: []Generation{
		{Pipeline: bad, ResponseID: "r1"},
		{Pipeline: bad, ResponseID: "r2"},
		{Pipeline: bad, ResponseID: "r3"},
	}}
	structuralErr := "Stage 0: 'match' is not a valid aggregation operator (must start with $)"
	val := &scriptedValidator{verdicts: []verdict{{ok: false, err: structuralErr}}}
	exec := &scriptedExecutor{results: []execResult{{}}}
	sum := &stubSummarizer{}

	a := newTestAgent(gen, val, exec, sum)
	res := a.Query(context.Background(), Question{Text: "q"})

	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if res.Error != structuralErr {
		t.Errorf("Error = %q, want the last structural error", res.Error)
	}
	if res.Pipeline != nil {
		t.Errorf("Pipeline = %v, want nil", res.Pipeline)
	}
	if res.Results != nil {
		t.Errorf("Results = %v, want nil", res.Results)
	}
	if len(gen.calls) != 3 {
		t.Errorf("generator calls = %d, want 3", len(gen.calls))
	}
	if len(exec.calls) != 0 {
		t.Errorf("executor calls = %d, want 0", len(exec.calls))
	}
	if sum.called {
		t.Error("summarizer must not run on failure")
	}
}

func TestQuery_GenerationNeverProduces(t *testing.T) {
	gen := &scriptedGenerator{gens: []Generation{{Err: "completion service error: dial tcp: refused"}}}
	a := newTestAgent(gen, &scriptedValidator{verdicts: []verdict{{ok: true}}},
		&scriptedExecutor{results: []execResult{{}}}, &stubSummarizer{})

	res := a.Query(context.Background(), Question{Text: "q"})

	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if !strings.Contains(res.Error, "refused") {
		t.Errorf("Error = %q", res.Error)
	}
	if len(gen.calls) != 3 {
		t.Errorf("generator calls = %d, want 3 (all attempts consumed)", len(gen.calls))
	}
}

func TestQuery_ExecutionErrorFedBack(t *testing.T) {
	p := mustParse(t, `[{"$match": {"a": 1}}]`)
	gen := &scriptedGenerator{gens: []Generation{
		{Pipeline: p, ResponseID: "r1"},
		{Pipeline: p, ResponseID: "r2"},
	}}
	val := &scriptedValidator{verdicts: []verdict{{ok: true}}}
	exec := &scriptedExecutor{results: []execResult{
		{err: "Query execution failed: PlanExecutor error"},
		{rows: []Document{{{Key: "a", Value: int64(1)}}}},
	}}
	sum := &stubSummarizer{answer: "done", id: "resp_done"}

	a := newTestAgent(gen, val, exec, sum)
	res := a.Query(context.Background(), Question{Text: "q"})

	if !res.Success {
		t.Fatalf("Success = false, error %q", res.Error)
	}
	if got := gen.calls[1].PreviousError; !strings.Contains(got, "PlanExecutor error") {
		t.Errorf("execution error not fed back: %q", got)
	}
}

func TestQuery_SummarizationNeverRetries(t *testing.T) {
	p := mustParse(t, `[{"$count": "n"}]`)
	gen := &scriptedGenerator{gens: []Generation{{Pipeline: p, ResponseID: "r1"}}}
	val := &scriptedValidator{verdicts: []verdict{{ok: true}}}
	exec := &scriptedExecutor{results: []execResult{{rows: []Document{{{Key: "n", Value: int64(9)}}}}}}
	// Degraded summarizer: fallback answer, unchanged id.
	sum := &stubSummarizer{answer: fallbackAnswer, id: "r1"}

	a := newTestAgent(gen, val, exec, sum)
	res := a.Query(context.Background(), Question{Text: "q"})

	if !res.Success {
		t.Fatal("degraded summarization must not fail the query")
	}
	if res.Answer != fallbackAnswer {
		t.Errorf("Answer = %q", res.Answer)
	}
	if len(gen.calls) != 1 {
		t.Errorf("generator calls = %d, want 1 (no summarize retry)", len(gen.calls))
	}
}

func TestQuery_ThreadsCallerContinuityAndConfig(t *testing.T) {
	p := mustParse(t, `[{"$count": "n"}]`)
	gen := &scriptedGenerator{gens: []Generation{{Pipeline: p, ResponseID: "r1"}}}
	val := &scriptedValidator{verdicts: []verdict{{ok: true}}}
	exec := &scriptedExecutor{results: []execResult{{rows: nil}}}
	sum := &stubSummarizer{answer: "a", id: "r2"}

	a := newTestAgent(gen, val, exec, sum)
	a.Query(context.Background(), Question{
		Text:               "q",
		PreviousResponseID: "resp_last_turn",
		History:            []Turn{{Question: "prior q", Answer: "prior a"}},
		MaxResults:         25,
		ReasoningEffort:    "high",
		Verbosity:          "low",
		Model:              "gpt-5-mini",
	})

	if gen.calls[0].PreviousResponseID != "resp_last_turn" {
		t.Errorf("first attempt continuity = %q, want resp_last_turn", gen.calls[0].PreviousResponseID)
	}
	if gen.calls[0].ReasoningEffort != "high" {
		t.Errorf("effort = %q", gen.calls[0].ReasoningEffort)
	}
	if gen.calls[0].Model != "gpt-5-mini" {
		t.Errorf("model = %q, want gpt-5-mini", gen.calls[0].Model)
	}
	if len(gen.calls[0].History) != 1 || gen.calls[0].History[0].Question != "prior q" {
		t.Errorf("history not passed through: %+v", gen.calls[0].History)
	}
	if exec.limits[0] != 25 {
		t.Errorf("executor limit = %d, want 25", exec.limits[0])
	}
	if sum.gotVerb != "low" {
		t.Errorf("verbosity = %q", sum.gotVerb)
	}
}

type panickingValidator struct{}

func (panickingValidator) Validate(ctx context.Context, p Pipeline) (bool, string) {
	panic("unexpected internal fault")
}

func TestQuery_PanicBecomesFailureResult(t *testing.T) {
	p := mustParse(t, `[{"$count": "n"}]`)
	gen := &scriptedGenerator{gens: []Generation{{Pipeline: p, ResponseID: "r1"}}}

	a := newTestAgent(gen, panickingValidator{}, &scriptedExecutor{results: []execResult{{}}}, &stubSummarizer{})
	res := a.Query(context.Background(), Question{Text: "q"})

	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if !strings.Contains(res.Error, "agent error") {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestAgent_SchemaAndReset(t *testing.T) {
	a := newTestAgent(&scriptedGenerator{gens: []Generation{{}}}, &scriptedValidator{verdicts: []verdict{{}}},
		&scriptedExecutor{results: []execResult{{}}}, &stubSummarizer{})

	if a.Schema() != "schema" {
		t.Errorf("Schema() = %q", a.Schema())
	}
	a.Reset() // no-op, must not panic
}
