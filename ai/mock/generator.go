package mock

import (
	"context"
	"sync"

	"github.com/poiesic/nomnom/ai"
	"github.com/poiesic/nomnom/core"
)

// MockGenerator is a test double for ai.Generator that replays scripted
// fragments and records cancellation of the simulated upstream call.
type MockGenerator struct {
	// GenerateFunc replaces the scripted behavior when set.
	GenerateFunc func(ctx context.Context, prompt *core.Prompt) (*ai.Stream, error)

	// Fragments are emitted in order for every call.
	Fragments []string

	// StartErr is returned by Generate before any stream is created.
	StartErr error

	// Err, when set, ends the stream after FailAfter fragments.
	Err       error
	FailAfter int

	// Hold keeps the call open after the last fragment until it is canceled,
	// like a slow upstream that has not finished.
	Hold bool

	mu         sync.Mutex
	calls      int
	lastPrompt *core.Prompt
	canceled   chan struct{}
	cancelOnce sync.Once
}

// NewMockGenerator creates a generator that emits fragments and then ends cleanly.
func NewMockGenerator(fragments ...string) *MockGenerator {
	return &MockGenerator{
		Fragments: fragments,
		canceled:  make(chan struct{}),
	}
}

// Generate starts a scripted stream.
func (m *MockGenerator) Generate(ctx context.Context, prompt *core.Prompt) (*ai.Stream, error) {
	m.mu.Lock()
	m.calls++
	m.lastPrompt = prompt
	if m.canceled == nil {
		m.canceled = make(chan struct{})
	}
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	if m.StartErr != nil {
		return nil, m.StartErr
	}

	return ai.NewStream(ctx, func(ctx context.Context, emit ai.EmitFunc) error {
		for i, f := range m.Fragments {
			if m.Err != nil && i == m.FailAfter {
				return m.Err
			}
			if err := emit(f); err != nil {
				m.markCanceled()
				return err
			}
		}
		if m.Err != nil && m.FailAfter >= len(m.Fragments) {
			return m.Err
		}
		if m.Hold {
			<-ctx.Done()
			m.markCanceled()
			return ctx.Err()
		}
		return nil
	}), nil
}

func (m *MockGenerator) markCanceled() {
	m.cancelOnce.Do(func() { close(m.canceled) })
}

// Canceled is closed once a call observed cancellation.
func (m *MockGenerator) Canceled() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.canceled == nil {
		m.canceled = make(chan struct{})
	}
	return m.canceled
}

// CallCount returns the number of times Generate was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastPrompt returns the prompt of the most recent call.
func (m *MockGenerator) LastPrompt() *core.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}
