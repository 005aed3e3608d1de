package storage

import (
	"context"

	"github.com/poiesic/nomnom/core"
)

// RecipeIndex is the read side of a vector-indexed recipe store.
// Implementations must be thread-safe and support concurrent access.
type RecipeIndex interface {
	// FindSimilar returns up to limit recipes nearest to vector, most
	// similar first. Similarity metric and tie-breaking belong to the
	// implementation. An empty result is not an error.
	FindSimilar(ctx context.Context, vector []float32, limit int) ([]*core.SearchResult, error)

	// Dimensions reports the vector length the index was built with.
	// Zero means the index has not learned it yet.
	Dimensions() int

	// Close closes the index and releases resources.
	Close() error
}

// RecipeRepository adds the write operations used to populate an index.
type RecipeRepository interface {
	RecipeIndex

	// AddRecipes stores recipes with their embeddings. Recipes with an
	// empty ID get one derived from their content. Existing recipes with
	// the same ID are replaced. Returns the stored recipes.
	AddRecipes(ctx context.Context, recipes ...*core.Recipe) ([]*core.Recipe, error)

	// GetRecipe retrieves a single recipe by ID.
	// Returns ErrNotFound if the recipe doesn't exist.
	GetRecipe(ctx context.Context, id string) (*core.Recipe, error)

	// CountRecipes returns the number of stored recipes.
	CountRecipes(ctx context.Context) (int, error)
}

// CheckpointRepository persists progress markers for resumable jobs.
type CheckpointRepository interface {
	// SaveCheckpoint stores checkpoint, replacing any previous one for the same job.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns the checkpoint for job, or nil if none exists.
	LoadCheckpoint(ctx context.Context, job string) (*core.Checkpoint, error)
}
