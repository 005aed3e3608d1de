// Copyright 2025 Poiesic Systems
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
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/nomnom"
	"github.com/poiesic/nomnom/config"
	"github.com/poiesic/nomnom/core"
	"github.com/poiesic/nomnom/ingestion"
	"github.com/poiesic/nomnom/rag"
	"github.com/poiesic/nomnom/server"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "nomnom",
		Usage: "Recipe question answering over a vector index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"NOMNOM_CONFIG"},
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load environment variables from these files before reading configuration",
				Value: cli.NewStringSlice(".env"),
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the question answering HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides configuration)",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer one question and stream the answer to stdout",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "turn",
						Usage: "Prior conversation turn as role:text, oldest first (roles: human, ai)",
					},
				},
			},
			{
				Name:   "seed",
				Usage:  "Embed recipes from a YAML or JSON file and store them in the index",
				Action: seedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the recipe file",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "restart",
						Usage: "Ignore any saved checkpoint and seed from the beginning",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of recipes to embed in each batch",
						Value: 32,
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of batches processed concurrently",
						Value: 4,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N recipes",
						Value: 32,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts for each embedding request",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.ListenAddr = addr
	}

	svc, err := nomnom.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer svc.Close()

	pipeline, err := svc.NewPipeline(rag.WithMonitor(rag.NewLogMonitor(slog.Default())))
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	srv, err := server.New(pipeline,
		server.WithAddr(cfg.Server.ListenAddr),
		server.WithLogger(slog.Default()),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.ListenAndServe(ctx)
}

func askCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	query := strings.Join(c.Args().Slice(), " ")
	history, err := parseTurns(c.StringSlice("turn"))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	svc, err := nomnom.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer svc.Close()

	pipeline, err := svc.NewPipeline()
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	return ask(ctx, pipeline, &core.Request{Query: query, History: history}, c.App.Writer)
}

// ask streams one answer to w. An answer that fails part way leaves what was
// written and ends with an abort notice.
func ask(ctx context.Context, answerer server.Answerer, req *core.Request, w io.Writer) error {
	answer, err := answerer.Answer(ctx, req)
	if err != nil {
		return err
	}
	defer answer.Close()

	for answer.Next() {
		if _, err := io.WriteString(w, answer.Fragment()); err != nil {
			return err
		}
	}
	if err := answer.Err(); err != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "[answer aborted]")
		return err
	}
	fmt.Fprintln(w)
	return nil
}

func seedCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	seedConfig := &ingestion.Config{
		BatchSize:      c.Int("batch-size"),
		PoolSize:       c.Int("pool-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if err := validateSeedConfig(seedConfig); err != nil {
		return err
	}

	path := c.String("file")
	recipes, err := ingestion.LoadRecipes(path)
	if err != nil {
		return fmt.Errorf("failed to load recipes: %w", err)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	svc, err := nomnom.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer svc.Close()

	seeder, err := svc.NewSeeder(
		ingestion.WithConfig(seedConfig),
		ingestion.WithProgress(c.App.ErrWriter),
	)
	if err != nil {
		return fmt.Errorf("failed to create seeder: %w", err)
	}
	defer seeder.Release()

	if c.Bool("restart") {
		if err := seeder.ResetCheckpoint(ctx); err != nil {
			return fmt.Errorf("failed to reset checkpoint: %w", err)
		}
	}

	fmt.Fprintf(c.App.ErrWriter, "Recipes: %s (%d)\n", path, len(recipes))
	fmt.Fprintf(c.App.ErrWriter, "Index: %s at %s\n", cfg.Index.IndexName, cfg.Index.Path)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	result, err := seeder.Seed(ctx, path, recipes)
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	fmt.Fprintf(c.App.ErrWriter, "Stored %d recipes (%d embedded, %d skipped) in %s\n",
		result.Stored, result.Embedded, result.Skipped, result.Elapsed.Round(time.Millisecond))
	return nil
}

func validateSeedConfig(cfg *ingestion.Config) error {
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.PoolSize <= 0 {
		return fmt.Errorf("pool-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if cfg.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"), os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseTurns reads role:text pairs into conversation turns.
func parseTurns(values []string) ([]core.Turn, error) {
	turns := make([]core.Turn, 0, len(values))
	for i, v := range values {
		name, text, ok := strings.Cut(v, ":")
		if !ok {
			return nil, fmt.Errorf("turn %d: expected role:text, got %q", i, v)
		}
		role, err := core.ParseRole(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		turns = append(turns, core.Turn{Role: role, Content: strings.TrimSpace(text)})
	}
	return turns, nil
}

func setup(c *cli.Context) error {
	logger, err := newLogger(c.String("log-level"), c.String("log-format"), c.App.ErrWriter)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(c.StringSlice("env-file")...); err != nil {
		return err
	}
	return nil
}

// newLogger builds a text logger or a zap-backed JSON logger writing to w.
func newLogger(levelStr, format string, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})), nil
	case "json":
		zapLevel, err := zapcore.ParseLevel(strings.ToLower(levelStr))
		if err != nil {
			return nil, err
		}
		zcore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(w),
			zap.NewAtomicLevelAt(zapLevel),
		)
		return slog.New(zapslog.NewHandler(zcore, zapslog.WithCaller(true))), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", format)
	}
}
