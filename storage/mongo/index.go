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


// Package mongo implements storage.RecipeIndex on MongoDB Atlas vector search.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/nomnom/core"
	"github.com/poiesic/nomnom/storage"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	// candidateMultiplier sizes the approximate search relative to the limit.
	candidateMultiplier = 10
	scoreField          = "_score"
)

// ConnectConfig holds what is needed to reach the recipe collection.
type ConnectConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// aggregator is the part of *mongo.Collection the index needs.
type aggregator interface {
	Aggregate(ctx context.Context, pipeline any, opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error)
}

// Index implements storage.RecipeIndex over a collection named after the
// node label, searched with the $vectorSearch stage.
type Index struct {
	client     *mongo.Client
	collection aggregator
	config     storage.IndexConfig
	logger     *slog.Logger
}

var _ storage.RecipeIndex = (*Index)(nil)

// Connect dials MongoDB, verifies the connection and returns an index
// over the configured collection.
func Connect(ctx context.Context, conn ConnectConfig, config storage.IndexConfig) (*Index, error) {
	if conn.URI == "" {
		return nil, fmt.Errorf("%w: mongo: URI is required", core.ErrConfiguration)
	}
	if conn.Database == "" {
		return nil, fmt.Errorf("%w: mongo: Database is required", core.ErrConfiguration)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := options.Client().ApplyURI(conn.URI)
	if conn.Username != "" {
		opts.SetAuth(options.Credential{
			Username: conn.Username,
			Password: conn.Password,
		})
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: mongo connect: %w", core.ErrConfiguration, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, fmt.Errorf("%w: mongo ping: %w", core.ErrUpstreamUnavailable, err)
	}

	idx := newIndex(client.Database(conn.Database).Collection(config.NodeLabel), config)
	idx.client = client
	return idx, nil
}

func newIndex(collection aggregator, config storage.IndexConfig) *Index {
	return &Index{
		collection: collection,
		config:     config,
		logger:     slog.Default().With("component", "mongo-index", "index", config.IndexName),
	}
}

// Dimensions returns the configured dimensionality. Atlas enforces it when
// the vector index is defined, so it cannot be discovered from the data.
func (x *Index) Dimensions() int {
	return x.config.Dimensions
}

// FindSimilar runs an approximate nearest neighbour search and returns
// recipes in the order Atlas ranks them.
func (x *Index) FindSimilar(ctx context.Context, vector []float32, limit int) ([]*core.SearchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", storage.ErrInvalidQuery, limit)
	}
	if err := core.ValidateVector(vector, x.config.Dimensions); err != nil {
		return nil, err
	}

	cursor, err := x.collection.Aggregate(ctx, buildPipeline(x.config, vector, limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []recipeDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	results := make([]*core.SearchResult, 0, len(docs))
	for i := range docs {
		results = append(results, &core.SearchResult{
			Recipe: &docs[i].Recipe,
			Score:  float32(docs[i].Score),
		})
	}

	x.logger.Debug("vector search complete", "results", len(results), "limit", limit)
	return results, nil
}

// Close disconnects the client if this index owns one.
func (x *Index) Close() error {
	if x.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return x.client.Disconnect(ctx)
}

type recipeDocument struct {
	core.Recipe `bson:",inline"`
	Score       float64 `bson:"_score"`
}

// buildPipeline searches the configured index and drops the stored vector
// so it never leaves the database.
func buildPipeline(config storage.IndexConfig, vector []float32, limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: config.IndexName},
			{Key: "path", Value: config.EmbeddingProperty},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: limit * candidateMultiplier},
			{Key: "limit", Value: limit},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: scoreField, Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: config.EmbeddingProperty, Value: 0},
		}}},
	}
}
