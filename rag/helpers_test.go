package rag

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/nomnom/core"
	"github.com/poiesic/nomnom/storage"
	"github.com/stretchr/testify/require"
)

// defaultComposer returns a composer for the built-in system template.
func defaultComposer(t *testing.T) *Composer {
	t.Helper()
	c, err := NewComposer(SystemTemplate)
	require.NoError(t, err)
	return c
}

// fakeIndex is a scripted storage.RecipeIndex.
type fakeIndex struct {
	dims          int
	results       []*core.SearchResult
	err           error
	block         bool
	FindSimilarFn func(ctx context.Context, vector []float32, limit int) ([]*core.SearchResult, error)

	mu        sync.Mutex
	calls     int
	lastLimit int
}

var _ storage.RecipeIndex = (*fakeIndex)(nil)

func (f *fakeIndex) FindSimilar(ctx context.Context, vector []float32, limit int) ([]*core.SearchResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastLimit = limit
	f.mu.Unlock()

	if f.FindSimilarFn != nil {
		return f.FindSimilarFn(ctx, vector, limit)
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.results, f.err
}

func (f *fakeIndex) Dimensions() int { return f.dims }
func (f *fakeIndex) Close() error    { return nil }

func (f *fakeIndex) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func resultsFor(names ...string) []*core.SearchResult {
	results := make([]*core.SearchResult, 0, len(names))
	for i, name := range names {
		results = append(results, &core.SearchResult{
			Recipe: &core.Recipe{
				ID:                name,
				Name:              name,
				JoinedIngredients: name + " ingredients",
				CleanedContents:   name + " steps",
			},
			Score: 1 - float32(i)*0.1,
		})
	}
	return results
}

// recordingMonitor records hook names in call order.
type recordingMonitor struct {
	mu        sync.Mutex
	events    []string
	retrieved []*core.Recipe
	fragments int
	err       error
}

func (m *recordingMonitor) record(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *recordingMonitor) Start(_ string) { m.record("start") }
func (m *recordingMonitor) AfterEmbedding(_ int, _ time.Duration) {
	m.record("embedding")
}
func (m *recordingMonitor) AfterRetrieval(recipes []*core.Recipe, _ time.Duration) {
	m.mu.Lock()
	m.retrieved = recipes
	m.mu.Unlock()
	m.record("retrieval")
}
func (m *recordingMonitor) AfterCompose(_ *core.Prompt)   { m.record("compose") }
func (m *recordingMonitor) FirstFragment(_ time.Duration) { m.record("first") }
func (m *recordingMonitor) Finish(fragments int, _ time.Duration, err error) {
	m.mu.Lock()
	m.fragments = fragments
	m.err = err
	m.mu.Unlock()
	m.record("finish")
}

func (m *recordingMonitor) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}
