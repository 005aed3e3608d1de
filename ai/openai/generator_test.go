package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/nomnom/ai"
	"github.com/poiesic/nomnom/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel streams its chunks through the StreamingFunc call option.
type fakeModel struct {
	chunks   []string
	err      error
	hold     bool
	opts     llms.CallOptions
	messages []llms.MessageContent
	canceled chan struct{}
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, opt := range options {
		opt(&f.opts)
	}
	for _, c := range f.chunks {
		if err := f.opts.StreamingFunc(ctx, []byte(c)); err != nil {
			return nil, err
		}
	}
	if f.hold {
		<-ctx.Done()
		close(f.canceled)
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func testPrompt() *core.Prompt {
	return &core.Prompt{
		Question: "What can I make with eggs and rice?",
		Messages: []core.Message{
			{Role: core.RoleSystem, Content: "You are NOMNOM."},
			{Role: core.RoleHuman, Content: "What can I make with eggs and rice?"},
		},
	}
}

func TestGeneratorStreamsChunksInOrder(t *testing.T) {
	model := &fakeModel{chunks: []string{"I have", "", " something", " I can recommend..."}}
	gen := newGeneratorWithModel(model, "gpt-4o")

	s, err := gen.Generate(context.Background(), testPrompt())
	require.NoError(t, err)

	var got []string
	for s.Next() {
		got = append(got, s.Fragment())
	}
	require.NoError(t, s.Err())

	assert.Equal(t, []string{"I have", " something", " I can recommend..."}, got)
	assert.Equal(t, 0.0, model.opts.Temperature)
	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: "What can I make with eggs and rice?"}, model.messages[1].Parts[0])
}

func TestGeneratorReportsUpstreamError(t *testing.T) {
	boom := errors.New("502 bad gateway")
	gen := newGeneratorWithModel(&fakeModel{chunks: []string{"partial"}, err: boom}, "gpt-4o")

	s, err := gen.Generate(context.Background(), testPrompt())
	require.NoError(t, err)
	text, err := collect(s)

	assert.Equal(t, "partial", text)
	assert.ErrorIs(t, err, boom)
}

func TestGeneratorCloseCancelsCall(t *testing.T) {
	model := &fakeModel{chunks: []string{"one"}, hold: true, canceled: make(chan struct{})}
	gen := newGeneratorWithModel(model, "gpt-4o")

	s, err := gen.Generate(context.Background(), testPrompt())
	require.NoError(t, err)
	require.True(t, s.Next())
	s.Close()

	select {
	case <-model.canceled:
	case <-time.After(time.Second):
		t.Fatal("upstream call was not canceled")
	}
}

func TestGeneratorRejectsEmptyPrompt(t *testing.T) {
	gen := newGeneratorWithModel(&fakeModel{}, "gpt-4o")

	_, err := gen.Generate(context.Background(), &core.Prompt{})
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = gen.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestNewGeneratorRequiresAPIKey(t *testing.T) {
	_, err := NewGenerator(ai.NewConfig())
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

// collect drains s and returns the concatenated fragments.
func collect(s *ai.Stream) (string, error) {
	defer s.Close()
	var out []byte
	for s.Next() {
		out = append(out, s.Fragment()...)
	}
	return string(out), s.Err()
}
