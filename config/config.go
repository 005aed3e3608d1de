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


// Package config assembles service configuration from defaults, an
// optional YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/nomnom/ai"
	"github.com/poiesic/nomnom/core"
	"github.com/poiesic/nomnom/rag"
	"github.com/poiesic/nomnom/storage"
	"gopkg.in/yaml.v3"
)

// Index backends.
const (
	BackendBadger = "badger"
	BackendMongo  = "mongo"
)

// Environment variable names.
const (
	EnvAPIKey            = "OPENAI_API_KEY"
	EnvEmbeddingHost     = "NOMNOM_EMBEDDING_HOST"
	EnvEmbeddingModel    = "NOMNOM_EMBEDDING_MODEL"
	EnvGenerationHost    = "NOMNOM_GENERATION_HOST"
	EnvGenerationModel   = "NOMNOM_GENERATION_MODEL"
	EnvIndexBackend      = "NOMNOM_INDEX_BACKEND"
	EnvIndexURI          = "NOMNOM_INDEX_URI"
	EnvIndexUsername     = "NOMNOM_INDEX_USERNAME"
	EnvIndexPassword     = "NOMNOM_INDEX_PASSWORD"
	EnvIndexDatabase     = "NOMNOM_INDEX_DATABASE"
	EnvIndexPath         = "NOMNOM_INDEX_PATH"
	EnvIndexName         = "NOMNOM_INDEX_NAME"
	EnvIndexNodeLabel    = "NOMNOM_INDEX_NODE_LABEL"
	EnvIndexTextProps    = "NOMNOM_INDEX_TEXT_PROPERTIES"
	EnvIndexEmbeddingKey = "NOMNOM_INDEX_EMBEDDING_PROPERTY"
	EnvIndexDimensions   = "NOMNOM_INDEX_DIMENSIONS"
	EnvListenAddr        = "NOMNOM_LISTEN_ADDR"
	EnvTopK              = "NOMNOM_TOP_K"
	EnvEmbeddingTimeout  = "NOMNOM_EMBEDDING_TIMEOUT"
	EnvRetrievalTimeout  = "NOMNOM_RETRIEVAL_TIMEOUT"
	EnvGenerationTimeout = "NOMNOM_GENERATION_TIMEOUT"
)

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// IndexConfig selects the vector index and describes its layout.
type IndexConfig struct {
	// Backend is BackendBadger or BackendMongo.
	Backend string `yaml:"backend"`

	// Path is the badger data directory.
	Path string `yaml:"path"`

	// URI, Username, Password and Database locate a MongoDB deployment.
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	storage.IndexConfig `yaml:",inline"`
}

// PipelineConfig bounds the answer pipeline.
type PipelineConfig struct {
	TopK              int           `yaml:"top_k"`
	EmbeddingTimeout  time.Duration `yaml:"embedding_timeout"`
	RetrievalTimeout  time.Duration `yaml:"retrieval_timeout"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the complete service configuration.
type Config struct {
	AI       ai.Config      `yaml:"ai"`
	Index    IndexConfig    `yaml:"index"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Server   ServerConfig   `yaml:"server"`
}

// Default returns the configuration used when nothing is overridden. The
// API key is never defaulted.
func Default() *Config {
	return &Config{
		AI: *ai.DefaultConfig(),
		Index: IndexConfig{
			Backend:     BackendBadger,
			Path:        "./data/recipes",
			IndexConfig: storage.DefaultIndexConfig(),
		},
		Pipeline: PipelineConfig{
			TopK:              rag.DefaultTopK,
			EmbeddingTimeout:  rag.DefaultEmbeddingTimeout,
			RetrievalTimeout:  rag.DefaultRetrievalTimeout,
			GenerationTimeout: rag.DefaultGenerationTimeout,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%w: load %s: %w", core.ErrConfiguration, p, err)
		}
	}
	return nil
}

// Load builds a configuration from defaults, the YAML file at path when
// path is not empty, and then the variables visible through lookup. The
// result is not validated.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", core.ErrConfiguration, path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", core.ErrConfiguration, path, err)
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields with every variable that is set.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	str(EnvAPIKey, &c.AI.APIKey)
	str(EnvEmbeddingHost, &c.AI.EmbeddingHost)
	str(EnvEmbeddingModel, &c.AI.EmbeddingModel)
	str(EnvGenerationHost, &c.AI.GenerationHost)
	str(EnvGenerationModel, &c.AI.GenerationModel)

	str(EnvIndexBackend, &c.Index.Backend)
	str(EnvIndexURI, &c.Index.URI)
	str(EnvIndexUsername, &c.Index.Username)
	str(EnvIndexPassword, &c.Index.Password)
	str(EnvIndexDatabase, &c.Index.Database)
	str(EnvIndexPath, &c.Index.Path)
	str(EnvIndexName, &c.Index.IndexName)
	str(EnvIndexNodeLabel, &c.Index.NodeLabel)
	str(EnvIndexEmbeddingKey, &c.Index.EmbeddingProperty)
	if v, ok := lookup(EnvIndexTextProps); ok {
		c.Index.TextProperties = splitList(v)
	}

	str(EnvListenAddr, &c.Server.ListenAddr)

	var err error
	if c.Index.Dimensions, err = intEnv(lookup, EnvIndexDimensions, c.Index.Dimensions); err != nil {
		return err
	}
	if c.Pipeline.TopK, err = intEnv(lookup, EnvTopK, c.Pipeline.TopK); err != nil {
		return err
	}
	if c.Pipeline.EmbeddingTimeout, err = durationEnv(lookup, EnvEmbeddingTimeout, c.Pipeline.EmbeddingTimeout); err != nil {
		return err
	}
	if c.Pipeline.RetrievalTimeout, err = durationEnv(lookup, EnvRetrievalTimeout, c.Pipeline.RetrievalTimeout); err != nil {
		return err
	}
	if c.Pipeline.GenerationTimeout, err = durationEnv(lookup, EnvGenerationTimeout, c.Pipeline.GenerationTimeout); err != nil {
		return err
	}
	return nil
}

// Validate checks everything needed to serve answers. Every failure wraps
// core.ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.AI.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := rag.ValidateTopK(c.Pipeline.TopK); err != nil {
		return err
	}
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"embedding_timeout", c.Pipeline.EmbeddingTimeout},
		{"retrieval_timeout", c.Pipeline.RetrievalTimeout},
		{"generation_timeout", c.Pipeline.GenerationTimeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			return fmt.Errorf("%w: pipeline config: %s must be positive", core.ErrConfiguration, t.name)
		}
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("%w: server config: listen_addr is required", core.ErrConfiguration)
	}
	return nil
}

// Validate checks the backend selection and its connection settings.
func (c IndexConfig) Validate() error {
	switch c.Backend {
	case BackendBadger:
		if c.Path == "" {
			return fmt.Errorf("%w: index config: path is required for %s", core.ErrConfiguration, c.Backend)
		}
	case BackendMongo:
		if c.URI == "" {
			return fmt.Errorf("%w: index config: uri is required for %s", core.ErrConfiguration, c.Backend)
		}
		if c.Database == "" {
			return fmt.Errorf("%w: index config: database is required for %s", core.ErrConfiguration, c.Backend)
		}
	default:
		return fmt.Errorf("%w: index config: unknown backend %q", core.ErrConfiguration, c.Backend)
	}
	return c.IndexConfig.Validate()
}

// PipelineOptions converts the pipeline settings into rag options.
func (c *Config) PipelineOptions() []rag.Option {
	return []rag.Option{
		rag.WithTopK(c.Pipeline.TopK),
		rag.WithEmbeddingTimeout(c.Pipeline.EmbeddingTimeout),
		rag.WithRetrievalTimeout(c.Pipeline.RetrievalTimeout),
		rag.WithGenerationTimeout(c.Pipeline.GenerationTimeout),
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intEnv(lookup LookupFunc, key string, fallback int) (int, error) {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", core.ErrConfiguration, key, err)
	}
	return n, nil
}

func durationEnv(lookup LookupFunc, key string, fallback time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", core.ErrConfiguration, key, err)
	}
	return d, nil
}
