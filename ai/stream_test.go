package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emitAll(fragments ...string) ProduceFunc {
	return func(ctx context.Context, emit EmitFunc) error {
		for _, f := range fragments {
			if err := emit(f); err != nil {
				return err
			}
		}
		return nil
	}
}

// collect drains s and returns the concatenated fragments.
func collect(s *Stream) (string, error) {
	defer s.Close()
	var out []byte
	for s.Next() {
		out = append(out, s.Fragment()...)
	}
	return string(out), s.Err()
}

func TestStreamPreservesOrder(t *testing.T) {
	s := NewStream(context.Background(), emitAll("I have", " something", " I can recommend..."))

	var got []string
	for s.Next() {
		got = append(got, s.Fragment())
	}

	require.NoError(t, s.Err())
	assert.Equal(t, []string{"I have", " something", " I can recommend..."}, got)
}

func TestStreamDropsEmptyFragments(t *testing.T) {
	text, err := collect(NewStream(context.Background(), emitAll("a", "", "b", "")))

	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestStreamReportsProducerError(t *testing.T) {
	boom := errors.New("connection reset")
	s := NewStream(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		if err := emit("partial"); err != nil {
			return err
		}
		return boom
	})

	require.True(t, s.Next())
	assert.Equal(t, "partial", s.Fragment())
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), boom)
}

func TestStreamCloseCancelsProducer(t *testing.T) {
	canceled := make(chan struct{})
	s := NewStream(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		defer close(canceled)
		for {
			if err := emit("tick"); err != nil {
				return err
			}
		}
	})

	require.True(t, s.Next())
	s.Close()

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("producer still running after Close")
	}
	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.False(t, s.Next())
}

func TestStreamParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		<-ctx.Done()
		return ctx.Err()
	})

	cancel()

	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	s := NewStream(context.Background(), emitAll("x"))
	s.Close()
	s.Close()
	assert.False(t, s.Next())
}
