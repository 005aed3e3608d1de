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


package nomnom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/nomnom/ai"
	"github.com/poiesic/nomnom/ai/openai"
	"github.com/poiesic/nomnom/config"
	"github.com/poiesic/nomnom/core"
	"github.com/poiesic/nomnom/ingestion"
	"github.com/poiesic/nomnom/rag"
	"github.com/poiesic/nomnom/storage"
	"github.com/poiesic/nomnom/storage/badger"
	"github.com/poiesic/nomnom/storage/mongo"
)

// ErrSeedingUnsupported is returned by NewSeeder when the configured index
// is read-only from this service's point of view.
var ErrSeedingUnsupported = fmt.Errorf("%w: seeding requires the %s backend", core.ErrConfiguration, config.BackendBadger)

// Service owns the recipe index and the AI provider for one configuration.
type Service struct {
	config      *config.Config
	backend     *badger.Backend
	index       storage.RecipeIndex
	recipes     storage.RecipeRepository
	checkpoints storage.CheckpointRepository
	provider    ai.AIProvider
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	provider ai.AIProvider
	logger   *slog.Logger
}

// WithProvider uses provider instead of building an OpenAI provider from
// the configuration. The service closes it on Close.
func WithProvider(provider ai.AIProvider) ServiceOption {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithLogger sets the logger handed to the pipeline and the seeder.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// Open validates cfg, opens the configured index and creates the AI provider.
func Open(ctx context.Context, cfg *config.Config, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", core.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	s := &Service{config: cfg, logger: options.logger}

	switch cfg.Index.Backend {
	case config.BackendBadger:
		backend, err := badger.OpenBackend(cfg.Index.Path, false)
		if err != nil {
			return nil, err
		}
		recipes, err := badger.NewRecipeRepository(backend, cfg.Index.IndexConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
		s.backend = backend
		s.recipes = recipes
		s.index = recipes
		s.checkpoints = badger.NewCheckpointRepository(backend)
	case config.BackendMongo:
		index, err := mongo.Connect(ctx, mongo.ConnectConfig{
			URI:      cfg.Index.URI,
			Username: cfg.Index.Username,
			Password: cfg.Index.Password,
			Database: cfg.Index.Database,
		}, cfg.Index.IndexConfig)
		if err != nil {
			return nil, err
		}
		s.index = index
	}

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(&cfg.AI)
		if err != nil {
			s.closeIndex()
			return nil, err
		}
	}
	s.provider = provider

	s.logger.Info("service opened", "backend", cfg.Index.Backend, "index", cfg.Index.IndexName,
		"dimensions", s.index.Dimensions())
	return s, nil
}

// Close releases the provider and the index.
func (s *Service) Close() error {
	var errs []error
	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := s.closeIndex(); err != nil {
		s.logger.Error("error closing index", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) closeIndex() error {
	if err := s.index.Close(); err != nil {
		return err
	}
	if s.backend != nil {
		return s.backend.Close()
	}
	return nil
}

// Index returns the recipe index answers are retrieved from.
func (s *Service) Index() storage.RecipeIndex {
	return s.index
}

// Provider returns the AI provider.
func (s *Service) Provider() ai.AIProvider {
	return s.provider
}

// NewPipeline creates an answer pipeline with the configured bounds. opts
// are applied after them.
func (s *Service) NewPipeline(opts ...rag.Option) (*rag.Pipeline, error) {
	all := append(s.config.PipelineOptions(), rag.WithLogger(s.logger))
	return rag.NewPipeline(s.index, s.provider, append(all, opts...)...)
}

// NewSeeder creates a seeder that writes to the configured index. Callers
// must Release it.
func (s *Service) NewSeeder(opts ...ingestion.Option) (*ingestion.Seeder, error) {
	if s.recipes == nil {
		return nil, ErrSeedingUnsupported
	}
	all := []ingestion.Option{
		ingestion.WithIndexConfig(s.config.Index.IndexConfig),
		ingestion.WithCheckpoints(s.checkpoints),
		ingestion.WithLogger(s.logger),
	}
	return ingestion.NewSeeder(s.recipes, s.provider.Embedder(), append(all, opts...)...)
}
