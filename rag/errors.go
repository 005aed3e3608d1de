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

	"github.com/poiesic/nomnom/core"
)

var (
	// ErrIndexRequired is returned when a recipe index is not provided.
	ErrIndexRequired = errors.New("recipe index required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrInvalidTopK is returned when the number of recipes to retrieve is
	// outside 1..MaxTopK.
	ErrInvalidTopK = fmt.Errorf("%w: invalid top-k", core.ErrConfiguration)

	// ErrInvalidTimeout is returned when a stage timeout is not positive.
	ErrInvalidTimeout = fmt.Errorf("%w: invalid timeout", core.ErrConfiguration)
)

// Pipeline stages, used to label errors and log lines.
const (
	StageEmbedding  = "embedding"
	StageRetrieval  = "retrieval"
	StageGeneration = "generation"
)

// classify maps a failure of an external call onto the error taxonomy.
// Configuration errors pass through unchanged. Deadline expiry is reported
// as both ErrUpstreamUnavailable and ErrTimeout. Caller cancellation keeps
// context.Canceled so it is not mistaken for an upstream fault.
func classify(stage string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrConfiguration):
		return fmt.Errorf("%s: %w", stage, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w: %w", stage, core.ErrUpstreamUnavailable, core.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", stage, err)
	case errors.Is(err, core.ErrUpstreamUnavailable):
		return fmt.Errorf("%s: %w", stage, err)
	default:
		return fmt.Errorf("%s: %w: %w", stage, core.ErrUpstreamUnavailable, err)
	}
}

// withContextErr attaches ctx's error to err when the call failed because
// ctx ended but the client did not wrap the context error itself.
func withContextErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		return fmt.Errorf("%w: %w", cerr, err)
	}
	return err
}
