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


package storage

import (
	"fmt"

	"github.com/poiesic/nomnom/core"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MarshalRecipe serializes a Recipe to BSON.
func MarshalRecipe(recipe *core.Recipe) ([]byte, error) {
	data, err := bson.Marshal(recipe)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalRecipe deserializes a Recipe from BSON.
func UnmarshalRecipe(data []byte) (*core.Recipe, error) {
	var recipe core.Recipe
	if err := bson.Unmarshal(data, &recipe); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &recipe, nil
}

// MarshalCheckpoint serializes a Checkpoint to BSON.
func MarshalCheckpoint(checkpoint *core.Checkpoint) ([]byte, error) {
	data, err := bson.Marshal(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalCheckpoint deserializes a Checkpoint from BSON.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	var checkpoint core.Checkpoint
	if err := bson.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &checkpoint, nil
}
