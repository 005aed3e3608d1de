package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/nomnom/core"
	"github.com/poiesic/nomnom/storage"
)

// ctxCheckInterval is how many records are scored between context checks.
const ctxCheckInterval = 256

// RecipeRepository implements storage.RecipeRepository for BadgerDB.
// Recipes are stored with unit-length embeddings and searched by cosine
// similarity over every record of the index.
type RecipeRepository struct {
	backend   *Backend
	config    storage.IndexConfig
	namespace []byte
	logger    *slog.Logger

	mu   sync.RWMutex
	dims int
}

var _ storage.RecipeRepository = (*RecipeRepository)(nil)

// NewRecipeRepository creates a repository for the index described by config.
// A configured dimensionality that differs from the stored one is a
// configuration error.
func NewRecipeRepository(backend *Backend, config storage.IndexConfig) (*RecipeRepository, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := &RecipeRepository{
		backend:   backend,
		config:    config,
		namespace: makeNamespace(config.NodeLabel, config.IndexName),
		logger:    slog.Default().With("component", "badger-recipes", "index", config.IndexName),
	}

	stored, err := r.loadDimensions()
	if err != nil {
		return nil, err
	}
	switch {
	case stored > 0 && config.Dimensions > 0 && stored != config.Dimensions:
		return nil, fmt.Errorf("%w: index %s stores %d, configured %d",
			core.ErrDimensionMismatch, config.IndexName, stored, config.Dimensions)
	case stored > 0:
		r.dims = stored
	default:
		r.dims = config.Dimensions
	}

	return r, nil
}

// Close is a no-op; the backend owns the database.
func (r *RecipeRepository) Close() error {
	return nil
}

// Dimensions returns the vector length of the index, or 0 while it is empty
// and unconfigured.
func (r *RecipeRepository) Dimensions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dims
}

// AddRecipes stores recipes with their embeddings.
func (r *RecipeRepository) AddRecipes(ctx context.Context, recipes ...*core.Recipe) ([]*core.Recipe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dims := r.dims
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, recipe := range recipes {
			if err := core.ValidateRecipe(recipe); err != nil {
				return err
			}
			if len(recipe.Embedding) == 0 {
				return fmt.Errorf("%w: %s", storage.ErrMissingEmbedding, recipe.Name)
			}
			if err := core.ValidateVector(recipe.Embedding, dims); err != nil {
				return err
			}
			if dims == 0 {
				dims = len(recipe.Embedding)
			}

			if recipe.ID == "" {
				recipe.ID = RecipeID(recipe)
			}
			if recipe.CreatedAt.IsZero() {
				recipe.CreatedAt = now
			}
			recipe.UpdatedAt = now

			stored := *recipe
			stored.Embedding = storage.NormalizeVector(recipe.Embedding)
			value, err := storage.MarshalRecipe(&stored)
			if err != nil {
				return err
			}
			if err := tx.Set(makeRecipeKey(r.namespace, recipe.ID), value); err != nil {
				return err
			}
		}

		if dims != r.dims {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(dims))
			if err := tx.Set(makeDimensionsKey(r.namespace), buf); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	if dims != r.dims {
		r.logger.Info("index dimensionality set", "dimensions", dims)
		r.dims = dims
	}
	return recipes, nil
}

// GetRecipe retrieves a single recipe by ID.
func (r *RecipeRepository) GetRecipe(ctx context.Context, id string) (*core.Recipe, error) {
	var result *core.Recipe
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeRecipeKey(r.namespace, id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			result, err = storage.UnmarshalRecipe(val)
			return err
		})
	}, false)
	return result, err
}

// CountRecipes returns the number of recipes in the index.
func (r *RecipeRepository) CountRecipes(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeRecipePrefix(r.namespace)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// FindSimilar scores every recipe against vector and returns the best
// limit matches. Equal scores are ordered by ID so results are stable.
func (r *RecipeRepository) FindSimilar(ctx context.Context, vector []float32, limit int) ([]*core.SearchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", storage.ErrInvalidQuery, limit)
	}
	if err := core.ValidateVector(vector, r.Dimensions()); err != nil {
		return nil, err
	}
	query := storage.NormalizeVector(vector)

	var results []*core.SearchResult
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeRecipePrefix(r.namespace)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		scanned := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			scanned++
			if scanned%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			var recipe *core.Recipe
			err := iter.Item().Value(func(val []byte) error {
				var err error
				recipe, err = storage.UnmarshalRecipe(val)
				return err
			})
			if err != nil {
				return err
			}

			// Unscorable against this query
			if len(recipe.Embedding) != len(query) {
				continue
			}

			results = append(results, &core.SearchResult{
				Recipe: recipe,
				Score:  storage.DotProduct(query, recipe.Embedding),
			})
		}
		return ctx.Err()
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.Recipe.ID, b.Recipe.ID)
	})

	if len(results) > limit {
		results = results[:limit]
	}

	r.logger.Debug("similarity search complete", "candidates", len(results), "limit", limit)
	return results, nil
}

func (r *RecipeRepository) loadDimensions() (int, error) {
	dims := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDimensionsKey(r.namespace))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("%w: dimensions value has %d bytes", storage.ErrSerializationFailed, len(val))
			}
			dims = int(binary.BigEndian.Uint64(val))
			return nil
		})
	}, false)
	return dims, err
}

// RecipeID derives a stable ID from a recipe's name and ingredients.
func RecipeID(recipe *core.Recipe) string {
	return core.IDFromContent(recipe.Name + "\n" + recipe.JoinedIngredients).String()
}
