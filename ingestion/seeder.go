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


package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/nomnom/ai"
	"github.com/poiesic/nomnom/core"
	"github.com/poiesic/nomnom/storage"
)

// Config tunes a Seeder.
type Config struct {
	// BatchSize is the number of recipes embedded and written together
	BatchSize int

	// PoolSize is the number of batches processed concurrently
	PoolSize int

	// ReportInterval is how often to report progress (number of recipes)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns the default seeder settings.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      32,
		PoolSize:       max(1, runtime.NumCPU()/2),
		ReportInterval: 32,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Result summarizes one seeding run.
type Result struct {
	Total    int
	Skipped  int
	Embedded int
	Stored   int
	Elapsed  time.Duration
}

// Seeder embeds recipes and writes them to a recipe repository.
type Seeder struct {
	repo        storage.RecipeRepository
	embedder    ai.Embedder
	checkpoints storage.CheckpointRepository
	index       storage.IndexConfig
	config      Config
	progress    io.Writer
	pool        *ants.Pool
	logger      *slog.Logger
}

// Option configures a Seeder.
type Option func(*Seeder) error

// WithConfig replaces the default settings. Zero fields keep their defaults.
func WithConfig(config *Config) Option {
	return func(s *Seeder) error {
		if config == nil {
			return nil
		}
		if config.BatchSize > 0 {
			s.config.BatchSize = config.BatchSize
		}
		if config.PoolSize > 0 {
			s.config.PoolSize = config.PoolSize
		}
		if config.ReportInterval > 0 {
			s.config.ReportInterval = config.ReportInterval
		}
		if config.MaxRetries > 0 {
			s.config.MaxRetries = config.MaxRetries
		}
		if config.RetryDelay > 0 {
			s.config.RetryDelay = config.RetryDelay
		}
		return nil
	}
}

// WithIndexConfig sets which recipe properties are embedded and in what order.
// Default is storage.DefaultIndexConfig().
func WithIndexConfig(config storage.IndexConfig) Option {
	return func(s *Seeder) error {
		if err := config.Validate(); err != nil {
			return err
		}
		s.index = config
		return nil
	}
}

// WithCheckpoints makes runs resumable.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(s *Seeder) error {
		s.checkpoints = repo
		return nil
	}
}

// WithProgress writes a progress line to w while seeding.
func WithProgress(w io.Writer) Option {
	return func(s *Seeder) error {
		s.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Seeder) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "seeder")
		return nil
	}
}

// NewSeeder creates a seeder writing to repo.
func NewSeeder(repo storage.RecipeRepository, embedder ai.Embedder, opts ...Option) (*Seeder, error) {
	if repo == nil {
		return nil, ErrRecipeRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Seeder{
		repo:     repo,
		embedder: embedder,
		index:    storage.DefaultIndexConfig(),
		config:   *DefaultConfig(),
		progress: io.Discard,
		logger:   slog.Default().With("component", "seeder"),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(s.config.PoolSize)
	if err != nil {
		return nil, err
	}
	s.pool = pool

	return s, nil
}

// Release releases the worker pool. The seeder should not be used after
// calling Release.
func (s *Seeder) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Job names the checkpoint used for the seeder's index.
func (s *Seeder) Job() string {
	return "seed:" + s.index.NodeLabel + ":" + s.index.IndexName
}

// ResetCheckpoint forgets the progress of previous runs.
func (s *Seeder) ResetCheckpoint(ctx context.Context) error {
	if s.checkpoints == nil {
		return nil
	}
	return s.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{Job: s.Job()})
}

// Seed embeds and stores recipes read from source. Recipes that already
// carry an embedding are stored as they are. When a checkpoint for the same
// source exists, recipes before it are skipped. The first failing batch
// stops the run; batches already written stay written.
func (s *Seeder) Seed(ctx context.Context, source string, recipes []*core.Recipe) (*Result, error) {
	start, err := s.resumePoint(ctx, source, len(recipes))
	if err != nil {
		return nil, err
	}

	pending := recipes[start:]
	result := &Result{Total: len(recipes), Skipped: start}
	if len(pending) == 0 {
		s.logger.Info("nothing to seed", "source", source, "total", len(recipes))
		return result, nil
	}

	batchSize := s.config.BatchSize
	batches := make([][]*core.Recipe, 0, (len(pending)+batchSize-1)/batchSize)
	for i := 0; i < len(pending); i += batchSize {
		batches = append(batches, pending[i:min(i+batchSize, len(pending))])
	}

	s.logger.Info("seeding recipes", "source", source, "recipes", len(pending), "skipped", start,
		"batches", len(batches), "batch_size", batchSize)

	tracker := NewProgressTracker(s.progress, len(pending), s.config.ReportInterval)
	tracker.Start()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg       sync.WaitGroup
		embedded atomic.Int64
		stored   atomic.Int64

		mu        sync.Mutex
		done      = make([]bool, len(batches))
		completed int
	)

	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}

			n, err := s.processBatch(ctx, batch)
			if err != nil {
				cancel(fmt.Errorf("batch %d: %w", i, err))
				return
			}
			embedded.Add(int64(n))
			stored.Add(int64(len(batch)))
			tracker.Increment(len(batch))

			// The checkpoint only moves past a contiguous run of finished
			// batches, so a resumed run never skips an unwritten one.
			mu.Lock()
			defer mu.Unlock()
			done[i] = true
			advanced := false
			for completed < len(done) && done[completed] {
				completed++
				advanced = true
			}
			if advanced {
				processed := start + min(completed*batchSize, len(pending))
				if err := s.saveCheckpoint(ctx, source, processed); err != nil {
					s.logger.Warn("checkpoint not saved", "processed", processed, "err", err)
				}
			}
		})
		if err != nil {
			wg.Done()
			cancel(fmt.Errorf("submit batch %d: %w", i, err))
			break
		}
	}

	wg.Wait()
	tracker.Finish()

	result.Embedded = int(embedded.Load())
	result.Stored = int(stored.Load())
	result.Elapsed = tracker.Elapsed()

	if ctx.Err() != nil {
		err := context.Cause(ctx)
		s.logger.Error("seeding stopped", "stored", result.Stored, "err", err)
		return result, err
	}

	s.logger.Info("seeding complete", "stored", result.Stored, "embedded", result.Embedded, "elapsed", result.Elapsed)
	return result, nil
}

// processBatch embeds the recipes that lack a vector and writes the batch.
// It returns how many recipes were embedded.
func (s *Seeder) processBatch(ctx context.Context, batch []*core.Recipe) (int, error) {
	var (
		targets []*core.Recipe
		texts   []string
	)
	for _, recipe := range batch {
		if len(recipe.Embedding) > 0 {
			continue
		}
		targets = append(targets, recipe)
		texts = append(texts, s.index.EmbeddingText(recipe))
	}

	if len(texts) > 0 {
		var embeddings [][]float32
		err := RetryWithBackoff(ctx, func(ctx context.Context) error {
			var err error
			embeddings, err = s.embedder.EmbedTexts(ctx, texts)
			return err
		}, s.config.MaxRetries, s.config.RetryDelay)
		if err != nil {
			return 0, fmt.Errorf("%w: embed recipes after %d attempts: %w", core.ErrUpstreamUnavailable, s.config.MaxRetries, err)
		}
		if len(embeddings) != len(targets) {
			return 0, fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(targets), len(embeddings))
		}
		for i, recipe := range targets {
			recipe.Embedding = embeddings[i]
		}
	}

	if _, err := s.repo.AddRecipes(ctx, batch...); err != nil {
		return 0, fmt.Errorf("store recipes: %w", err)
	}
	return len(texts), nil
}

func (s *Seeder) resumePoint(ctx context.Context, source string, total int) (int, error) {
	if s.checkpoints == nil {
		return 0, nil
	}
	checkpoint, err := s.checkpoints.LoadCheckpoint(ctx, s.Job())
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	if checkpoint == nil || checkpoint.Source != source {
		return 0, nil
	}
	if checkpoint.Processed > total {
		s.logger.Warn("checkpoint is past the end of the source, starting over",
			"source", source, "processed", checkpoint.Processed, "total", total)
		return 0, nil
	}
	if checkpoint.Processed > 0 {
		s.logger.Info("resuming from checkpoint", "source", source, "processed", checkpoint.Processed)
	}
	return checkpoint.Processed, nil
}

func (s *Seeder) saveCheckpoint(ctx context.Context, source string, processed int) error {
	if s.checkpoints == nil {
		return nil
	}
	return s.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		Job:       s.Job(),
		Source:    source,
		Processed: processed,
	})
}
