package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// executeMaxTime is the server-side budget for real pipeline executions.
const executeMaxTime = 30 * time.Second

// Executor runs validated pipelines with an enforced result cap and time
// budget, serializing every row before returning it.
type Executor struct {
	engine     QueryEngine
	maxResults int
	logger     *slog.Logger
}

// NewExecutor creates an Executor. maxResults is the default result cap
// appended to pipelines that lack a $limit stage; values <= 0 default to 100.
func NewExecutor(engine QueryEngine, maxResults int) *Executor {
	if maxResults <= 0 {
		maxResults = 100
	}
	return &Executor{
		engine:     engine,
		maxResults: maxResults,
		logger:     slog.Default(),
	}
}

// Execute runs the pipeline and returns its serialized rows. limit overrides
// the default result cap when positive. Failures come back as a non-empty
// error string suitable for feeding into the next generation attempt; a bad
// pipeline never takes the orchestrator down.
func (e *Executor) Execute(ctx context.Context, pipeline Pipeline, limit int) ([]Document, string) {
	if limit <= 0 {
		limit = e.maxResults
	}

	start := time.Now()
	docs, err := e.engine.Aggregate(ctx, pipeline.WithLimit(limit), EngineOptions{
		MaxTime: executeMaxTime,
	})
	if err != nil {
		errMsg := fmt.Sprintf("Query execution failed: %v", err)
		e.logger.Error("pipeline execution failed", "error", err)
		return nil, errMsg
	}

	e.logger.Info("query executed",
		"duration_ms", time.Since(start).Milliseconds(),
		"results", len(docs),
	)

	rows := make([]Document, len(docs))
	for i, doc := range docs {
		rows[i] = Serialize(doc)
	}
	return rows, ""
}
