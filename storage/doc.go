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


// Package storage provides the storage abstraction layer for recipe indexes.
//
// This package defines the interfaces the answer pipeline uses to search
// recipes by vector similarity, and the write side used by the seeder.
// Two backends are provided:
//
//   - storage/badger: embedded store with brute-force cosine search
//   - storage/mongo: MongoDB Atlas $vectorSearch, read only
//
// # Architecture
//
//   - RecipeIndex: similarity search over stored recipes
//   - RecipeRepository: RecipeIndex plus writes, used to populate badger
//   - CheckpointRepository: progress markers for resumable seeding
//   - IndexConfig: index name, node label, text properties, vector property
//
// # Usage
//
//	backend, err := badger.OpenBackend("/var/lib/nomnom", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	repo, err := badger.NewRecipeRepository(backend, storage.DefaultIndexConfig())
//	results, err := repo.FindSimilar(ctx, vector, 4)
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
