// Package importer loads the purchase orders CSV export into MongoDB,
// transforming each row into the nested document shape the query agent is
// prompted against.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize = 5000
	defaultWorkers   = 4
)

// Inserter abstracts bulk insertion so the importer can be tested without a
// running database.
type Inserter interface {
	InsertMany(ctx context.Context, docs []interface{}) (int, error)
}

// CollectionInserter adapts a mongo collection to the Inserter interface.
// Inserts are unordered so one bad document does not abort the batch.
type CollectionInserter struct {
	Collection *mongo.Collection
}

func (c *CollectionInserter) InsertMany(ctx context.Context, docs []interface{}) (int, error) {
	res, err := c.Collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) {
			// Partial success: everything not named in a write error landed.
			return len(docs) - len(bwe.WriteErrors), nil
		}
		return 0, err
	}
	return len(res.InsertedIDs), nil
}

// Stats summarizes one import run.
type Stats struct {
	TotalRows int64
	Inserted  int64
	Skipped   int64
	Failed    int64
	Duration  time.Duration
}

type Importer struct {
	inserter  Inserter
	batchSize int
	workers   int
	logger    *slog.Logger
}

type Option func(*Importer)

func WithBatchSize(n int) Option {
	return func(imp *Importer) {
		if n > 0 {
			imp.batchSize = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(imp *Importer) {
		if n > 0 {
			imp.workers = n
		}
	}
}

func New(inserter Inserter, logger *slog.Logger, opts ...Option) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	imp := &Importer{
		inserter:  inserter,
		batchSize: defaultBatchSize,
		workers:   defaultWorkers,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// Run streams CSV rows from r, transforms them in batches, and inserts the
// batches concurrently. The first header row names the columns.
func (imp *Importer) Run(ctx context.Context, r io.Reader, sourceFile string) (Stats, error) {
	start := time.Now()

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Stats{}, fmt.Errorf("reading CSV header: %w", err)
	}

	var total, inserted, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imp.workers)

	flush := func(batch []interface{}) {
		g.Go(func() error {
			n, err := imp.inserter.InsertMany(gctx, batch)
			if err != nil {
				return fmt.Errorf("inserting batch: %w", err)
			}
			inserted.Add(int64(n))
			failed.Add(int64(len(batch) - n))
			return nil
		})
	}

	batch := make([]interface{}, 0, imp.batchSize)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			imp.logger.Warn("skipping malformed CSV record", "error", err)
			skipped.Add(1)
			continue
		}
		total.Add(1)

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}

		doc := TransformRow(row, sourceFile)
		if problems := ValidateDocument(doc); len(problems) > 0 {
			imp.logger.Debug("skipping invalid row",
				"row", total.Load(), "problems", problems)
			skipped.Add(1)
			continue
		}

		batch = append(batch, doc)
		if len(batch) == imp.batchSize {
			flush(batch)
			batch = make([]interface{}, 0, imp.batchSize)
		}

		if total.Load()%50000 == 0 {
			imp.logger.Info("import progress",
				"rows", total.Load(), "inserted", inserted.Load())
		}
	}
	if len(batch) > 0 {
		flush(batch)
	}

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalRows: total.Load(),
		Inserted:  inserted.Load(),
		Skipped:   skipped.Load(),
		Failed:    failed.Load(),
		Duration:  time.Since(start),
	}
	imp.logger.Info("import complete",
		"rows", stats.TotalRows,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", stats.Duration.Round(time.Millisecond),
	)
	return stats, nil
}

// EnsureIndexes creates the query indexes the agent's pipelines rely on.
// Existing indexes are left untouched.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "purchase_order_number", Value: 1}}},
		{Keys: bson.D{{Key: "supplier.code", Value: 1}}},
		{Keys: bson.D{{Key: "item.total_price", Value: 1}}},
		{Keys: bson.D{{Key: "dates.fiscal_year_start", Value: 1}}},
		{Keys: bson.D{{Key: "cal_card", Value: 1}}},
		{Keys: bson.D{
			{Key: "dates.fiscal_year", Value: 1},
			{Key: "department.name", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "acquisition.type", Value: 1},
			{Key: "dates.creation", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "supplier.name", Value: 1},
			{Key: "item.total_price", Value: -1},
		}},
		{Keys: bson.D{{Key: "supplier.location", Value: "2dsphere"}}},
		{Keys: bson.D{
			{Key: "item.name", Value: "text"},
			{Key: "item.description", Value: "text"},
			{Key: "supplier.name", Value: "text"},
			{Key: "department.name", Value: "text"},
		}},
	}

	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}
	return nil
}
