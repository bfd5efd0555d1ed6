package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/datamill/askdb/internal/agent"
	"github.com/datamill/askdb/internal/api"
	"github.com/datamill/askdb/internal/config"
	"github.com/datamill/askdb/internal/openai"
	"github.com/datamill/askdb/internal/schema"
	"github.com/datamill/askdb/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the askdb server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show askdb system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "askdb version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to MongoDB and verify it answers before serving.
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	mongoClient, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return fmt.Errorf("connecting to MongoDB: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			slog.Warn("disconnecting from MongoDB", "error", err)
		}
	}()
	if err := mongoClient.Ping(connectCtx, readpref.Primary()); err != nil {
		return fmt.Errorf("pinging MongoDB: %w", err)
	}
	coll := mongoClient.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
	slog.Info("connected to MongoDB",
		"database", cfg.Mongo.Database, "collection", cfg.Mongo.Collection)

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Wire the agent.
	openaiClient := openai.NewClientWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	engine := agent.NewCollectionEngine(coll)
	ag := agent.New(
		agent.NewGenerator(openaiClient, cfg.OpenAI.Model, cfg.OpenAI.SupportsReasoning, schema.Description),
		agent.NewValidator(engine),
		agent.NewExecutor(engine, cfg.Agent.MaxResults),
		agent.NewSummarizer(openaiClient, cfg.OpenAI.Model, cfg.OpenAI.SupportsReasoning),
		agent.Options{
			MaxAttempts:       cfg.Agent.MaxAttempts,
			ReasoningEffort:   cfg.Agent.ReasoningEffort,
			Verbosity:         cfg.Agent.Verbosity,
			SchemaDescription: schema.Description,
		},
	)

	handler := api.NewAppHandler(api.AppDeps{
		Agent: ag,
		Store: store,
		Token: cfg.Server.APIToken,
		Ping: func(ctx context.Context) error {
			return mongoClient.Ping(ctx, readpref.Primary())
		},
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{Agent: ag, Store: store})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "askdb listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check MongoDB.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err == nil {
		err = mongoClient.Ping(ctx, readpref.Primary())
		defer mongoClient.Disconnect(context.Background())
	}
	if err != nil {
		printStatus("MongoDB", "not reachable")
	} else {
		printStatus("MongoDB", "%s/%s", cfg.Mongo.Database, cfg.Mongo.Collection)
		count, countErr := mongoClient.Database(cfg.Mongo.Database).
			Collection(cfg.Mongo.Collection).
			EstimatedDocumentCount(ctx)
		if countErr == nil {
			printStatus("Documents", "%d", count)
		}
	}

	printStatus("Model", "%s", cfg.OpenAI.Model)
	printStatus("Max attempts", "%d", cfg.Agent.MaxAttempts)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
