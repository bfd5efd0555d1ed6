package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/datamill/askdb/internal/config"
	"github.com/datamill/askdb/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Import a purchase orders CSV export into MongoDB",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		workers, _ := cmd.Flags().GetInt("workers")
		skipIndexes, _ := cmd.Flags().GetBool("skip-indexes")
		return runImport(cmd.Context(), args[0], batchSize, workers, skipIndexes)
	},
}

func init() {
	importCmd.Flags().Int("batch-size", 5000, "documents per insert batch")
	importCmd.Flags().Int("workers", 4, "concurrent insert workers")
	importCmd.Flags().Bool("skip-indexes", false, "do not create indexes after import")
}

func runImport(ctx context.Context, csvPath string, batchSize, workers int, skipIndexes bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("opening CSV file: %w", err)
	}
	defer f.Close()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	mongoClient, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return fmt.Errorf("connecting to MongoDB: %w", err)
	}
	defer mongoClient.Disconnect(context.Background())
	if err := mongoClient.Ping(connectCtx, readpref.Primary()); err != nil {
		return fmt.Errorf("pinging MongoDB: %w", err)
	}
	coll := mongoClient.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)

	printStep("Importing %s into %s.%s", csvPath, cfg.Mongo.Database, cfg.Mongo.Collection)

	imp := importer.New(
		&importer.CollectionInserter{Collection: coll},
		slog.Default(),
		importer.WithBatchSize(batchSize),
		importer.WithWorkers(workers),
	)
	stats, err := imp.Run(ctx, f, filepath.Base(csvPath))
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	printSuccess("Imported %d of %d rows in %s (%d skipped, %d failed)",
		stats.Inserted, stats.TotalRows, stats.Duration.Round(time.Second),
		stats.Skipped, stats.Failed)

	if skipIndexes {
		return nil
	}

	printStep("Creating indexes...")
	if err := importer.EnsureIndexes(ctx, coll); err != nil {
		return err
	}
	printSuccess("Indexes ready")
	return nil
}
