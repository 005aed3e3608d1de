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


package ai

import (
	"context"
	"sync"
)

// EmitFunc delivers one fragment to the consumer. It blocks until the
// consumer takes the fragment and fails once the stream is canceled.
type EmitFunc func(fragment string) error

// ProduceFunc runs a generation call, calling emit for each fragment in
// order. It must return promptly once ctx is done.
type ProduceFunc func(ctx context.Context, emit EmitFunc) error

// Stream is a single-use, ordered sequence of generated text fragments.
// Fragments are handed over one at a time through an unbuffered channel,
// so the producer never runs ahead of the consumer by more than one
// fragment. A Stream must be used by a single consumer goroutine.
//
//	defer s.Close()
//	for s.Next() {
//	    fmt.Print(s.Fragment())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	fragments chan string
	cancel    context.CancelFunc
	current   string
	err       error
	closeOnce sync.Once
}

// NewStream starts produce on its own goroutine under a context derived
// from parent. Empty fragments are dropped.
func NewStream(parent context.Context, produce ProduceFunc) *Stream {
	ctx, cancel := context.WithCancel(parent)
	s := &Stream{
		fragments: make(chan string),
		cancel:    cancel,
	}

	go func() {
		defer close(s.fragments)
		s.err = produce(ctx, func(fragment string) error {
			if fragment == "" {
				return nil
			}
			select {
			case s.fragments <- fragment:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	return s
}

// Next blocks until the next fragment is available. It returns false when
// the stream ends, either cleanly or with an error reported by Err.
func (s *Stream) Next() bool {
	fragment, ok := <-s.fragments
	if !ok {
		s.cancel()
		return false
	}
	s.current = fragment
	return true
}

// Fragment returns the fragment read by the last successful Next.
func (s *Stream) Fragment() string {
	return s.current
}

// Err returns the producer's error. It is only meaningful after Next has
// returned false.
func (s *Stream) Err() error {
	return s.err
}

// Close cancels the producer and waits for it to exit. It is safe to call
// more than once and after the stream has ended.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		for range s.fragments {
		}
	})
}
