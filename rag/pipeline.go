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


package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/nomnom/ai"
	"github.com/poiesic/nomnom/core"
	"github.com/poiesic/nomnom/storage"
)

// Default bounds for the three external calls.
const (
	DefaultEmbeddingTimeout  = 15 * time.Second
	DefaultRetrievalTimeout  = 10 * time.Second
	DefaultGenerationTimeout = 2 * time.Minute
)

// Pipeline answers questions against a recipe index. It holds no
// per-request state and is safe for concurrent use.
type Pipeline struct {
	retriever *Retriever
	embedder  ai.Embedder
	generator ai.Generator
	composer  *Composer
	monitor   Monitor
	logger    *slog.Logger

	topK              int
	embeddingTimeout  time.Duration
	retrievalTimeout  time.Duration
	generationTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithTopK sets how many recipes are retrieved per question.
// Default is DefaultTopK.
func WithTopK(k int) Option {
	return func(p *Pipeline) error {
		if err := ValidateTopK(k); err != nil {
			return err
		}
		p.topK = k
		return nil
	}
}

// WithEmbeddingTimeout bounds the embedding call.
func WithEmbeddingTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("%w: embedding timeout %v", ErrInvalidTimeout, d)
		}
		p.embeddingTimeout = d
		return nil
	}
}

// WithRetrievalTimeout bounds the vector index query.
func WithRetrievalTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("%w: retrieval timeout %v", ErrInvalidTimeout, d)
		}
		p.retrievalTimeout = d
		return nil
	}
}

// WithGenerationTimeout bounds the generation call, including the time
// spent streaming the answer.
func WithGenerationTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("%w: generation timeout %v", ErrInvalidTimeout, d)
		}
		p.generationTimeout = d
		return nil
	}
}

// WithComposer replaces the default prompt composer.
func WithComposer(composer *Composer) Option {
	return func(p *Pipeline) error {
		if composer == nil {
			return fmt.Errorf("%w: composer is nil", core.ErrConfiguration)
		}
		p.composer = composer
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger.With("component", "rag")
		return nil
	}
}

// WithMonitor observes every request. A nil monitor disables monitoring.
func WithMonitor(monitor Monitor) Option {
	return func(p *Pipeline) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		p.monitor = monitor
		return nil
	}
}

// NewPipeline creates a pipeline over index using the provider's embedder
// and generator.
func NewPipeline(index storage.RecipeIndex, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	retriever, err := NewRetriever(index)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		retriever:         retriever,
		embedder:          provider.Embedder(),
		generator:         provider.Generator(),
		monitor:           &noopMonitor{},
		logger:            slog.Default().With("component", "rag"),
		topK:              DefaultTopK,
		embeddingTimeout:  DefaultEmbeddingTimeout,
		retrievalTimeout:  DefaultRetrievalTimeout,
		generationTimeout: DefaultGenerationTimeout,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.composer == nil {
		p.composer, err = NewComposer(SystemTemplate)
		if err != nil {
			return nil, err
		}
	}

	return p, nil
}

// TopK returns the number of recipes retrieved per question.
func (p *Pipeline) TopK() int {
	return p.topK
}

// Answer runs every stage up to the first generated fragment.
//
// Any error returned here means nothing was produced: invalid input
// (core.ErrEmptyQuery, core.ErrInvalidRole), core.ErrConfiguration, or
// core.ErrUpstreamUnavailable, possibly with core.ErrTimeout. Once Answer
// succeeds the caller owns the returned Answer and must Close it.
// Canceling ctx stops the generation call.
func (p *Pipeline) Answer(ctx context.Context, req *core.Request) (*Answer, error) {
	if req == nil {
		return nil, core.ErrEmptyQuery
	}
	query, err := core.ValidateQuery(req.Query)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateHistory(req.History); err != nil {
		return nil, err
	}

	start := time.Now()
	p.monitor.Start(query)
	fail := func(stage string, err error) (*Answer, error) {
		p.logFailure(stage, err)
		p.monitor.Finish(0, time.Since(start), err)
		return nil, err
	}

	// 1. Embed the question
	stageStart := time.Now()
	vector, err := p.embed(ctx, query)
	if err != nil {
		return fail(StageEmbedding, err)
	}
	p.monitor.AfterEmbedding(len(vector), time.Since(stageStart))

	// 2. Retrieve the nearest recipes
	stageStart = time.Now()
	recipes, err := p.retrieve(ctx, vector)
	if err != nil {
		return fail(StageRetrieval, err)
	}
	p.monitor.AfterRetrieval(recipes, time.Since(stageStart))

	// 3. Build the prompt
	prompt, err := p.composer.Compose(Sanitize(recipes), FormatHistory(req.History), query)
	if err != nil {
		return fail("compose", err)
	}
	p.monitor.AfterCompose(prompt)

	// 4. Start generation and wait for the first fragment
	genCtx, cancel := context.WithTimeout(ctx, p.generationTimeout)
	stream, err := p.generator.Generate(genCtx, prompt)
	if err != nil {
		// Classify before cancel so genCtx only reports its own deadline.
		err = classify(StageGeneration, withContextErr(genCtx, err))
		cancel()
		return fail(StageGeneration, err)
	}

	a := &Answer{
		stream:  stream,
		ctx:     genCtx,
		cancel:  cancel,
		monitor: p.monitor,
		logger:  p.logger,
		start:   start,
	}

	if !stream.Next() {
		err := classify(StageGeneration, withContextErr(genCtx, stream.Err()))
		stream.Close()
		cancel()
		if err != nil {
			return fail(StageGeneration, err)
		}
		// The model produced nothing; an empty answer is still an answer.
		a.done = true
		a.finish(nil)
		return a, nil
	}

	a.pending = stream.Fragment()
	a.primed = true
	p.monitor.FirstFragment(time.Since(start))
	return a, nil
}

func (p *Pipeline) embed(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.embeddingTimeout)
	defer cancel()

	vector, err := p.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, classify(StageEmbedding, withContextErr(ctx, err))
	}
	if err := core.ValidateVector(vector, 0); err != nil {
		return nil, classify(StageEmbedding, err)
	}
	return vector, nil
}

func (p *Pipeline) retrieve(ctx context.Context, vector []float32) ([]*core.Recipe, error) {
	ctx, cancel := context.WithTimeout(ctx, p.retrievalTimeout)
	defer cancel()

	return p.retriever.Retrieve(ctx, vector, p.topK)
}

func (p *Pipeline) logFailure(stage string, err error) {
	switch {
	case errors.Is(err, core.ErrTimeout):
		p.logger.Warn("stage timed out", "stage", stage, "err", err)
	case errors.Is(err, context.Canceled):
		p.logger.Debug("request canceled", "stage", stage)
	case errors.Is(err, core.ErrConfiguration):
		p.logger.Error("configuration error", "stage", stage, "err", err)
	default:
		p.logger.Error("stage failed", "stage", stage, "err", err)
	}
}

// Answer is the streamed reply to one question. Fragments arrive in the
// order the model produced them. An Answer is single-use and must be
// consumed from one goroutine.
type Answer struct {
	stream  *ai.Stream
	ctx     context.Context
	cancel  context.CancelFunc
	monitor Monitor
	logger  *slog.Logger
	start   time.Time

	pending string
	primed  bool
	current string
	count   int
	err     error
	done    bool

	finishOnce sync.Once
}

// Next advances to the next fragment. It returns false when the answer is
// complete or has failed; check Err afterwards.
func (a *Answer) Next() bool {
	if a.done {
		return false
	}
	if a.primed {
		a.primed = false
		a.current = a.pending
		a.pending = ""
		a.count++
		return true
	}
	if a.stream.Next() {
		a.current = a.stream.Fragment()
		a.count++
		return true
	}

	a.done = true
	if err := a.stream.Err(); err != nil {
		cause := classify(StageGeneration, withContextErr(a.ctx, err))
		a.err = fmt.Errorf("%w after %d fragments: %w", core.ErrMidStreamFailure, a.count, cause)
		if errors.Is(cause, core.ErrTimeout) {
			a.logger.Warn("generation timed out mid-stream", "fragments", a.count, "err", err)
		} else {
			a.logger.Error("generation failed mid-stream", "fragments", a.count, "err", err)
		}
	}
	a.cancel()
	a.finish(a.err)
	return false
}

// Fragment returns the fragment read by the last successful Next.
func (a *Answer) Fragment() string {
	return a.current
}

// Err returns nil for a complete answer. After a failure it returns an
// error matching core.ErrMidStreamFailure that wraps the cause.
func (a *Answer) Err() error {
	return a.err
}

// Fragments returns how many fragments have been delivered so far.
func (a *Answer) Fragments() int {
	return a.count
}

// Close stops generation if it is still running and releases the answer.
// It is safe to call more than once.
func (a *Answer) Close() {
	if a.stream != nil {
		a.stream.Close()
	}
	a.cancel()
	if !a.done {
		a.done = true
		a.finish(context.Canceled)
	}
}

func (a *Answer) finish(err error) {
	a.finishOnce.Do(func() {
		a.monitor.Finish(a.count, time.Since(a.start), err)
	})
}
