package rag

import (
	"log/slog"
	"time"

	"github.com/poiesic/nomnom/core"
)

// Monitor provides hooks to observe a request as it moves through the
// pipeline. Hooks for one request are called from at most one goroutine at
// a time, but a Monitor shared between requests must be safe for
// concurrent use.
type Monitor interface {
	Start(query string)
	AfterEmbedding(dims int, elapsed time.Duration)
	AfterRetrieval(recipes []*core.Recipe, elapsed time.Duration)
	AfterCompose(prompt *core.Prompt)
	// FirstFragment reports the time from Start to the first generated fragment.
	FirstFragment(elapsed time.Duration)
	// Finish is called exactly once per started request, with the number of
	// fragments delivered and the error that ended it, if any.
	Finish(fragments int, elapsed time.Duration, err error)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                   {}
func (n *noopMonitor) AfterEmbedding(_ int, _ time.Duration)            {}
func (n *noopMonitor) AfterRetrieval(_ []*core.Recipe, _ time.Duration) {}
func (n *noopMonitor) AfterCompose(_ *core.Prompt)                      {}
func (n *noopMonitor) FirstFragment(_ time.Duration)                    {}
func (n *noopMonitor) Finish(_ int, _ time.Duration, _ error)           {}

// LogMonitor reports each stage as a debug log line and the outcome of the
// request at info level.
type LogMonitor struct {
	Logger *slog.Logger
}

var _ Monitor = (*LogMonitor)(nil)

// NewLogMonitor creates a monitor writing to logger, or slog.Default() when
// logger is nil.
func NewLogMonitor(logger *slog.Logger) *LogMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMonitor{Logger: logger.With("component", "rag-monitor")}
}

func (m *LogMonitor) Start(query string) {
	m.Logger.Debug("answer started", "query_len", len(query))
}

func (m *LogMonitor) AfterEmbedding(dims int, elapsed time.Duration) {
	m.Logger.Debug("query embedded", "dimensions", dims, "elapsed", elapsed)
}

func (m *LogMonitor) AfterRetrieval(recipes []*core.Recipe, elapsed time.Duration) {
	names := make([]string, 0, len(recipes))
	for _, r := range recipes {
		names = append(names, r.Name)
	}
	m.Logger.Debug("recipes retrieved", "count", len(recipes), "names", names, "elapsed", elapsed)
}

func (m *LogMonitor) AfterCompose(prompt *core.Prompt) {
	m.Logger.Debug("prompt composed", "messages", len(prompt.Messages), "context_len", len(prompt.Context))
}

func (m *LogMonitor) FirstFragment(elapsed time.Duration) {
	m.Logger.Debug("first fragment", "elapsed", elapsed)
}

func (m *LogMonitor) Finish(fragments int, elapsed time.Duration, err error) {
	if err != nil {
		m.Logger.Info("answer failed", "fragments", fragments, "elapsed", elapsed, "err", err)
		return
	}
	m.Logger.Info("answer complete", "fragments", fragments, "elapsed", elapsed)
}
