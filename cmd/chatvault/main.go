// Copyright 2025 Chatvault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/chatvault/chatvault"
	"github.com/chatvault/chatvault/ai"
	"github.com/chatvault/chatvault/backfill"
	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/search"
	"github.com/chatvault/chatvault/server"
)

func main() {
	app := &cli.App{
		Name:  "chatvault",
		Usage: "Archive and search exported AI chat conversations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"CHATVAULT_LOG_LEVEL"},
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API server",
				Action: serveCommand,
				Flags: append(databaseFlags(),
					&cli.StringFlag{
						Name:    "addr",
						Usage:   "Listen address",
						Value:   ":8080",
						EnvVars: []string{"CHATVAULT_ADDR"},
					},
				),
			},
			{
				Name:      "import",
				Usage:     "Ingest an export file from disk",
				ArgsUsage: "FILE",
				Action:    importCommand,
				Flags: append(databaseFlags(),
					&cli.StringFlag{
						Name:     "provider",
						Aliases:  []string{"p"},
						Usage:    "Export provider (chatgpt, claude)",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "user",
						Usage:   "User the conversations belong to",
						Value:   "default",
						EnvVars: []string{"CHATVAULT_USER"},
					},
					&cli.BoolFlag{
						Name:  "wait-embeddings",
						Usage: "Block until all embeddings are generated",
					},
				),
			},
			{
				Name:      "search",
				Usage:     "Query the archive from the terminal",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: append(databaseFlags(),
					&cli.StringFlag{
						Name:    "mode",
						Aliases: []string{"m"},
						Usage:   "Search mode (fts, vector, hybrid)",
						Value:   "hybrid",
					},
					&cli.Float64Flag{
						Name:  "alpha",
						Usage: "Semantic weight for hybrid mode",
						Value: search.DefaultAlpha,
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   10,
					},
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Restrict to one provider (chatgpt, claude)",
					},
					&cli.StringFlag{
						Name:    "user",
						Usage:   "User to search as",
						Value:   "default",
						EnvVars: []string{"CHATVAULT_USER"},
					},
				),
			},
			{
				Name:   "backfill",
				Usage:  "Generate embeddings for messages that lack one",
				Action: backfillCommand,
				Flags: append(databaseFlags(),
					&cli.StringFlag{
						Name:    "user",
						Usage:   "Restrict the pass to one user (empty means all)",
						EnvVars: []string{"CHATVAULT_USER"},
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of messages to embed in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N messages",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// databaseFlags are shared by every command that touches the store.
func databaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to the BadgerDB database directory",
			Value:   filepath.Join(".", "chatvault-data"),
			EnvVars: []string{"CHATVAULT_DB"},
		},
		&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "Embedding service host URL",
			Value:   "http://localhost:11434/v1",
			EnvVars: []string{"CHATVAULT_EMBEDDING_HOST"},
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			Value:   "nomic-embed-text",
			EnvVars: []string{"CHATVAULT_EMBEDDING_MODEL"},
		},
	}
}

// setup loads .env and configures the default logger.
func setup(c *cli.Context) error {
	// Missing .env files are fine; explicit settings win over the file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	levelStr := strings.ToLower(c.String("log-level"))
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

func openDatabase(c *cli.Context) (*chatvault.Database, error) {
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	db, err := chatvault.NewDatabase(c.String("db"), chatvault.WithAIConfig(aiConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func serveCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	searcher, err := db.NewSearcher()
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	srv := server.NewServer(searcher, pipeline,
		db.Store().Conversations, db.Store().Uploads, db.Store().Backend)

	httpServer := &http.Server{
		Addr:              c.String("addr"),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", httpServer.Addr, "db", c.String("db"))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}
	return nil
}

func importCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("export file path is required")
	}
	provider, err := core.ParseProvider(c.String("provider"))
	if err != nil {
		return fmt.Errorf("unknown provider %q", c.String("provider"))
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read export file: %w", err)
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	ctx := context.Background()
	upload, err := db.Store().Uploads.CreateUpload(ctx, &core.FileUpload{
		UserId:    c.String("user"),
		Filename:  filepath.Base(path),
		SizeBytes: int64(len(payload)),
		FileType:  provider.String() + "_export",
		Provider:  provider,
	})
	if err != nil {
		return fmt.Errorf("failed to create upload record: %w", err)
	}

	if err := pipeline.ProcessUpload(ctx, upload, payload); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	if c.Bool("wait-embeddings") {
		fmt.Fprintln(os.Stderr, "Waiting for embedding generation...")
		pipeline.WaitForEmbeddings()
	}

	fmt.Printf("Imported %d conversations (%d messages) from %s\n",
		upload.ProcessedConversations, upload.ProcessedMessages, path)
	if upload.ErrorSummary != "" {
		fmt.Printf("Warnings: %s\n", upload.ErrorSummary)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	queryText := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(queryText) == "" {
		return fmt.Errorf("query text is required")
	}
	mode, err := core.ParseSearchMode(c.String("mode"))
	if err != nil {
		return fmt.Errorf("unknown mode %q", c.String("mode"))
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	q := search.Query{
		Text:   queryText,
		Mode:   mode,
		Limit:  c.Int("limit"),
		UserId: c.String("user"),
	}
	alpha := c.Float64("alpha")
	q.Alpha = &alpha
	if p := c.String("provider"); p != "" {
		provider, err := core.ParseProvider(p)
		if err != nil {
			return fmt.Errorf("unknown provider %q", p)
		}
		q.Provider = provider
	}

	resp, err := searcher.Search(context.Background(), q)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if resp.Degraded {
		fmt.Fprintln(os.Stderr, "Note: semantic ranking unavailable, results are lexical only")
	}
	if len(resp.Results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, hit := range resp.Results {
		title := "(untitled)"
		if hit.Conversation != nil {
			title = hit.Conversation.Title
		}
		fmt.Printf("%2d. [%.3f] %s (%s)\n", i+1, hit.Score, title, hit.Message.Role)
		fmt.Printf("    %s\n", truncate(hit.Message.Contents, 160))
	}
	fmt.Printf("\n%d of %d matches in %s\n", len(resp.Results), resp.Total, resp.Elapsed.Round(time.Millisecond))
	return nil
}

func backfillCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	config := &backfill.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n\n", c.String("embedding-model"))

	backfiller := db.NewBackfiller(config, os.Stderr)
	if err := backfiller.Run(context.Background(), c.String("user")); err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}
	return nil
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
