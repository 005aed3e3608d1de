package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/nomnom/core"
	"github.com/poiesic/nomnom/storage"
)

const (
	// DefaultTopK is the number of recipes retrieved per question.
	DefaultTopK = 4

	// MaxTopK bounds how many recipes may be placed in one prompt.
	MaxTopK = 20
)

// ValidateTopK checks that k is within 1..MaxTopK.
func ValidateTopK(k int) error {
	if k < 1 || k > MaxTopK {
		return fmt.Errorf("%w: %d is outside 1..%d", ErrInvalidTopK, k, MaxTopK)
	}
	return nil
}

// Retriever fetches the recipes nearest to a query vector.
type Retriever struct {
	index  storage.RecipeIndex
	logger *slog.Logger
}

// NewRetriever creates a retriever over index.
func NewRetriever(index storage.RecipeIndex) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	return &Retriever{
		index:  index,
		logger: slog.Default().With("component", "retriever"),
	}, nil
}

// Retrieve returns at most k recipes in the order the index ranked them.
// An empty result is not an error. The vector must match the index
// dimensionality exactly.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, k int) ([]*core.Recipe, error) {
	if err := ValidateTopK(k); err != nil {
		return nil, err
	}
	if err := core.ValidateVector(vector, r.index.Dimensions()); err != nil {
		return nil, err
	}

	results, err := r.index.FindSimilar(ctx, vector, k)
	if err != nil {
		r.logger.Error("similarity search failed", "k", k, "err", err)
		return nil, classify(StageRetrieval, withContextErr(ctx, err))
	}

	recipes := make([]*core.Recipe, 0, min(len(results), k))
	for _, result := range results {
		if len(recipes) == k {
			break
		}
		if result == nil || result.Recipe == nil {
			continue
		}
		recipes = append(recipes, result.Recipe)
	}

	r.logger.Debug("recipes retrieved", "k", k, "found", len(recipes))
	return recipes, nil
}
