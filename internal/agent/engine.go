package agent

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EngineOptions bound a single aggregation run.
type EngineOptions struct {
	// MaxTime is the server-side time budget for the run.
	MaxTime time.Duration
	// DisallowDiskUse forbids spilling to disk; set on validation dry-runs
	// so they cannot persist any state.
	DisallowDiskUse bool
}

// QueryEngine executes aggregation pipelines against the document store.
type QueryEngine interface {
	Aggregate(ctx context.Context, pipeline Pipeline, opts EngineOptions) ([]bson.D, error)
}

// CollectionEngine adapts a mongo.Collection to the QueryEngine interface.
type CollectionEngine struct {
	coll *mongo.Collection
}

// NewCollectionEngine wraps the given collection.
func NewCollectionEngine(coll *mongo.Collection) *CollectionEngine {
	return &CollectionEngine{coll: coll}
}

func (e *CollectionEngine) Aggregate(ctx context.Context, pipeline Pipeline, opts EngineOptions) ([]bson.D, error) {
	aggOpts := options.Aggregate()
	if opts.MaxTime > 0 {
		aggOpts.SetMaxTime(opts.MaxTime)
	}
	if opts.DisallowDiskUse {
		aggOpts.SetAllowDiskUse(false)
	}

	cursor, err := e.coll.Aggregate(ctx, mongo.Pipeline(pipeline), aggOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []bson.D
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}
