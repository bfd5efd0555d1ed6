package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// dryRunMaxTime is the short server-side budget for validation dry-runs.
// The real execution gets a much longer one; see executor.go.
const dryRunMaxTime = 1 * time.Second

// maxTimeExpiredCode is the server error code for MaxTimeMSExpired.
const maxTimeExpiredCode = 50

// Validator checks generated pipelines before they are executed for real:
// a structural pass over the stage list, then a capped, time-boxed dry-run
// against the live engine.
type Validator struct {
	engine QueryEngine
}

// NewValidator creates a Validator backed by the given engine.
func NewValidator(engine QueryEngine) *Validator {
	return &Validator{engine: engine}
}

// Validate returns whether the pipeline may be executed, with a reason when
// it may not. The error string is fed verbatim back into the next generation
// attempt, so it carries the engine's own message where possible.
//
// A dry-run that fails only because it exceeded its own short time budget is
// treated as valid: the pipeline may simply be expensive, and rejecting it
// would produce false negatives on legitimate heavy aggregations.
func (v *Validator) Validate(ctx context.Context, pipeline Pipeline) (bool, string) {
	if len(pipeline) == 0 {
		return false, "Pipeline cannot be empty"
	}

	for idx, stage := range pipeline {
		if len(stage) != 1 {
			return false, fmt.Sprintf("Stage %d must have exactly one operator", idx)
		}
		op := stage[0].Key
		if !strings.HasPrefix(op, "$") {
			return false, fmt.Sprintf("Stage %d: '%s' is not a valid aggregation operator (must start with $)", idx, op)
		}
	}

	// Dry-run with a result cap of 1; disk spill disabled so nothing
	// persists.
	_, err := v.engine.Aggregate(ctx, pipeline.WithLimit(1), EngineOptions{
		MaxTime:         dryRunMaxTime,
		DisallowDiskUse: true,
	})
	if err == nil {
		return true, ""
	}
	if isTimeLimitExceeded(err) {
		return true, ""
	}
	return false, fmt.Sprintf("Invalid pipeline: %v", err)
}

func isTimeLimitExceeded(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == maxTimeExpiredCode {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "exceeded time limit")
}
