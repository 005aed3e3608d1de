package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/nomnom/core"
	"github.com/poiesic/nomnom/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *RecipeRepository {
	t.Helper()
	repo, backend, err := NewMemoryRepository(storage.DefaultIndexConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func TestFindSimilar_NoRecipes(t *testing.T) {
	repo := newTestRepo(t)

	results, err := repo.FindSimilar(context.Background(), []float32{0.1, 0.2, 0.3}, 4)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, repo.Dimensions())
}

func TestFindSimilar_OrdersByScore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AddRecipes(ctx,
		&core.Recipe{Name: "Egg Fried Rice", Embedding: []float32{1.0, 0.0, 0.0}},
		&core.Recipe{Name: "Rice Pudding", Embedding: []float32{0.9, 0.1, 0.0}},
		&core.Recipe{Name: "Beef Stew", Embedding: []float32{0.0, 0.0, 1.0}},
	)
	require.NoError(t, err)

	results, err := repo.FindSimilar(ctx, []float32{2.0, 0.0, 0.0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "Egg Fried Rice", results[0].Recipe.Name)
	assert.Equal(t, "Rice Pudding", results[1].Recipe.Name)
	assert.Equal(t, "Beef Stew", results[2].Recipe.Name)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	for i := 0; i < len(results)-1; i++ {
		assert.GreaterOrEqual(t, results[i].Score, results[i+1].Score)
	}
}

func TestFindSimilar_LimitResults(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := repo.AddRecipes(ctx, &core.Recipe{
			Name:      fmt.Sprintf("Recipe %d", i),
			Embedding: []float32{0.9, 0.1, 0.0},
		})
		require.NoError(t, err)
	}

	t.Run("limit to 3", func(t *testing.T) {
		results, err := repo.FindSimilar(ctx, []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("limit higher than results", func(t *testing.T) {
		results, err := repo.FindSimilar(ctx, []float32{1, 0, 0}, 100)
		require.NoError(t, err)
		assert.Len(t, results, 10)
	})

	t.Run("ties are ordered by id", func(t *testing.T) {
		first, err := repo.FindSimilar(ctx, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		second, err := repo.FindSimilar(ctx, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		for i := range first {
			assert.Equal(t, first[i].Recipe.ID, second[i].Recipe.ID)
		}
		for i := 0; i < len(first)-1; i++ {
			assert.Less(t, first[i].Recipe.ID, first[i+1].Recipe.ID)
		}
	})

	t.Run("non-positive limit", func(t *testing.T) {
		_, err := repo.FindSimilar(ctx, []float32{1, 0, 0}, 0)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})
}

func TestFindSimilar_DimensionMismatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AddRecipes(ctx, &core.Recipe{Name: "Soup", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.Dimensions())

	_, err = repo.FindSimilar(ctx, []float32{1, 0}, 4)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = repo.AddRecipes(ctx, &core.Recipe{Name: "Salad", Embedding: []float32{1, 0}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestFindSimilar_CanceledContext(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.AddRecipes(context.Background(), &core.Recipe{Name: "Soup", Embedding: []float32{1, 0}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = repo.FindSimilar(ctx, []float32{1, 0}, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAddRecipes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("derives id and timestamps", func(t *testing.T) {
		added, err := repo.AddRecipes(ctx, &core.Recipe{
			Name:              "Shakshuka",
			JoinedIngredients: "eggs, tomatoes",
			Embedding:         []float32{3, 4},
		})
		require.NoError(t, err)
		require.Len(t, added, 1)

		assert.NotEmpty(t, added[0].ID)
		assert.False(t, added[0].CreatedAt.IsZero())

		got, err := repo.GetRecipe(ctx, added[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "Shakshuka", got.Name)
		assert.InDelta(t, 0.6, got.Embedding[0], 1e-6)
		assert.InDelta(t, 0.8, got.Embedding[1], 1e-6)
	})

	t.Run("same content replaces", func(t *testing.T) {
		before, err := repo.CountRecipes(ctx)
		require.NoError(t, err)

		_, err = repo.AddRecipes(ctx, &core.Recipe{
			Name:              "Shakshuka",
			JoinedIngredients: "eggs, tomatoes",
			Embedding:         []float32{4, 3},
		})
		require.NoError(t, err)

		after, err := repo.CountRecipes(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("missing embedding", func(t *testing.T) {
		_, err := repo.AddRecipes(ctx, &core.Recipe{Name: "Toast"})
		assert.ErrorIs(t, err, storage.ErrMissingEmbedding)
	})

	t.Run("invalid recipe", func(t *testing.T) {
		_, err := repo.AddRecipes(ctx, &core.Recipe{Embedding: []float32{1, 0}})
		assert.ErrorIs(t, err, core.ErrInvalidRecipe)
	})

	t.Run("failed batch writes nothing", func(t *testing.T) {
		before, err := repo.CountRecipes(ctx)
		require.NoError(t, err)

		_, err = repo.AddRecipes(ctx,
			&core.Recipe{Name: "Good", Embedding: []float32{1, 0}},
			&core.Recipe{Name: "Bad"},
		)
		require.Error(t, err)

		after, err := repo.CountRecipes(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestGetRecipe_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetRecipe(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIndexesAreIsolated(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	cfgA := storage.DefaultIndexConfig()
	cfgB := storage.DefaultIndexConfig()
	cfgB.IndexName = "otherIndex"

	repoA, err := NewRecipeRepository(backend, cfgA)
	require.NoError(t, err)
	repoB, err := NewRecipeRepository(backend, cfgB)
	require.NoError(t, err)

	_, err = repoA.AddRecipes(ctx, &core.Recipe{Name: "Soup", Embedding: []float32{1, 0}})
	require.NoError(t, err)

	results, err := repoB.FindSimilar(ctx, []float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNewRecipeRepository_StoredDimensions(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	repo, err := NewRecipeRepository(backend, storage.DefaultIndexConfig())
	require.NoError(t, err)
	_, err = repo.AddRecipes(ctx, &core.Recipe{Name: "Soup", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)

	reopened, err := NewRecipeRepository(backend, storage.DefaultIndexConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, reopened.Dimensions())

	cfg := storage.DefaultIndexConfig()
	cfg.Dimensions = 1536
	_, err = NewRecipeRepository(backend, cfg)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}
