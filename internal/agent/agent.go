package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Question is one natural-language query plus its per-call configuration.
type Question struct {
	Text    string
	History []Turn
	// PreviousResponseID is the continuity identifier from the caller's
	// last turn in this conversation, empty for a fresh conversation.
	PreviousResponseID string
	// MaxResults caps the result set; <= 0 uses the executor default.
	MaxResults int
	// ReasoningEffort, Verbosity, and Model override the agent defaults
	// when non-empty.
	ReasoningEffort string
	Verbosity       string
	Model           string
}

// Result is the terminal output of one Query invocation.
type Result struct {
	Success          bool       `json:"success"`
	Answer           string     `json:"answer,omitempty"`
	Pipeline         Pipeline   `json:"pipeline"`
	Results          []Document `json:"results"`
	ResultCount      int        `json:"result_count"`
	ReasoningSummary string     `json:"reasoning_summary,omitempty"`
	// ResponseID is the continuity identifier the caller hands back on
	// the conversation's next turn.
	ResponseID string    `json:"response_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// PipelineGenerator produces candidate pipelines from questions.
type PipelineGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) Generation
}

// PipelineValidator decides whether a candidate pipeline may be executed.
type PipelineValidator interface {
	Validate(ctx context.Context, pipeline Pipeline) (bool, string)
}

// PipelineExecutor runs a validated pipeline and returns serialized rows.
type PipelineExecutor interface {
	Execute(ctx context.Context, pipeline Pipeline, limit int) ([]Document, string)
}

// AnswerSummarizer narrates executed results.
type AnswerSummarizer interface {
	Summarize(ctx context.Context, question string, pipeline Pipeline, rows []Document, verbosity, previousResponseID string) (string, string)
}

// Options configure an Agent.
type Options struct {
	// MaxAttempts bounds the generate/validate/execute retry loop;
	// <= 0 defaults to 3.
	MaxAttempts     int
	ReasoningEffort string
	Verbosity       string
	// SchemaDescription is returned by Schema for introspection.
	SchemaDescription string
}

// Agent drives the retry loop that turns one question into a successful
// query execution or a characterized failure. It holds no per-conversation
// state: continuity identifiers travel in Question and Result.
type Agent struct {
	generator  PipelineGenerator
	validator  PipelineValidator
	executor   PipelineExecutor
	summarizer AnswerSummarizer

	maxAttempts   int
	defaultEffort string
	defaultVerb   string
	schemaText    string
	logger        *slog.Logger
}

// New wires the four phase components into an Agent.
func New(gen PipelineGenerator, val PipelineValidator, exec PipelineExecutor, sum AnswerSummarizer, opts Options) *Agent {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.ReasoningEffort == "" {
		opts.ReasoningEffort = "medium"
	}
	if opts.Verbosity == "" {
		opts.Verbosity = "medium"
	}
	return &Agent{
		generator:     gen,
		validator:     val,
		executor:      exec,
		summarizer:    sum,
		maxAttempts:   opts.MaxAttempts,
		defaultEffort: opts.ReasoningEffort,
		defaultVerb:   opts.Verbosity,
		schemaText:    opts.SchemaDescription,
		logger:        slog.Default(),
	}
}

// Query answers one question. It is synchronous and sequential: each attempt
// depends on the previous one's error and continuity state, so attempts are
// never parallel. Phase errors are captured as strings and fed back into the
// next generation prompt; they never propagate past this method. Only a
// truly unexpected panic is converted into a terminal failure result here.
func (a *Agent) Query(ctx context.Context, q Question) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("agent panic recovered", "panic", r)
			res = Result{
				Success:   false,
				Error:     fmt.Sprintf("agent error: %v", r),
				Timestamp: time.Now().UTC(),
			}
		}
	}()

	effort := q.ReasoningEffort
	if effort == "" {
		effort = a.defaultEffort
	}
	verbosity := q.Verbosity
	if verbosity == "" {
		verbosity = a.defaultVerb
	}

	var (
		pipeline   Pipeline
		rows       []Document
		pipelineID string
		reasoning  string
		prevError  string
		lastError  string
	)
	previousID := q.PreviousResponseID

	attempt := 0
	state := StateGenerate
	for {
		switch state {
		case StateGenerate:
			attempt++
			gen := a.generator.Generate(ctx, GenerateRequest{
				Question:           q.Text,
				History:            q.History,
				PreviousError:      prevError,
				PreviousResponseID: previousID,
				ReasoningEffort:    effort,
				Model:              q.Model,
			})
			if gen.ResponseID != "" {
				previousID = gen.ResponseID
			}
			if gen.Pipeline == nil {
				a.logger.Warn("pipeline generation failed",
					"attempt", attempt, "error", gen.Err)
				prevError, lastError = gen.Err, gen.Err
				state = Next(state, PhaseResult{AttemptsLeft: attempt < a.maxAttempts})
				continue
			}
			pipeline = gen.Pipeline
			pipelineID = gen.ResponseID
			reasoning = gen.ReasoningSummary
			state = Next(state, PhaseResult{OK: true})

		case StateValidate:
			ok, verr := a.validator.Validate(ctx, pipeline)
			if !ok {
				a.logger.Warn("pipeline rejected by validation",
					"attempt", attempt, "error", verr)
				prevError, lastError = verr, verr
				// Discarded: a pipeline that fails validation is
				// never executed for real.
				pipeline = nil
				state = Next(state, PhaseResult{AttemptsLeft: attempt < a.maxAttempts})
				continue
			}
			state = Next(state, PhaseResult{OK: true})

		case StateExecute:
			var xerr string
			rows, xerr = a.executor.Execute(ctx, pipeline, q.MaxResults)
			if xerr != "" {
				a.logger.Warn("pipeline execution failed",
					"attempt", attempt, "error", xerr)
				prevError, lastError = xerr, xerr
				pipeline = nil
				state = Next(state, PhaseResult{AttemptsLeft: attempt < a.maxAttempts})
				continue
			}
			state = Next(state, PhaseResult{OK: true})

		case StateSummarize:
			answer, answerID := a.summarizer.Summarize(ctx, q.Text, pipeline, rows, verbosity, pipelineID)
			return Result{
				Success:          true,
				Answer:           answer,
				Pipeline:         pipeline,
				Results:          rows,
				ResultCount:      len(rows),
				ReasoningSummary: reasoning,
				ResponseID:       answerID,
				Timestamp:        time.Now().UTC(),
			}

		case StateFailed:
			if lastError == "" {
				lastError = "Failed to generate aggregation pipeline"
			}
			return Result{
				Success:    false,
				Error:      lastError,
				ResponseID: previousID,
				Timestamp:  time.Now().UTC(),
			}
		}
	}
}

// Reset clears per-conversation agent state. The agent holds none (the
// caller owns continuity identifiers), so this exists for API compatibility.
func (a *Agent) Reset() {
	a.logger.Info("conversation state reset")
}

// Schema returns the static schema description used in generation prompts.
func (a *Agent) Schema() string {
	return a.schemaText
}
