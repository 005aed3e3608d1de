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


package core

import (
	"fmt"
	"math"
	"strings"
)

// ValidateQuery trims the query and rejects it when nothing is left.
// The trimmed query is returned so callers never forward padding.
func ValidateQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", ErrEmptyQuery
	}
	return q, nil
}

// ValidateRole checks that a history role is Human or Assistant.
func ValidateRole(role Role) error {
	if role != RoleHuman && role != RoleAssistant {
		return fmt.Errorf("%w: value %d", ErrInvalidRole, role)
	}
	return nil
}

// ValidateHistory validates every turn, reporting the first bad index.
func ValidateHistory(turns []Turn) error {
	for i, t := range turns {
		if err := ValidateRole(t.Role); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
	}
	return nil
}

// ValidateVector validates an embedding vector.
//
// Validation rules:
//   - Vector must not be empty
//   - Every component must be finite
//   - Length must equal dims when dims is positive
//
// A wrong length is reported as ErrDimensionMismatch, which is a
// configuration error. Vectors are never padded or truncated.
func ValidateVector(vector []float32, dims int) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: vector is empty", ErrInvalidVector)
	}
	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is %v", ErrInvalidVector, i, v)
		}
	}
	if dims > 0 && len(vector) != dims {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vector), dims)
	}
	return nil
}

// ValidateRecipe validates a recipe before it is written to an index.
//
// NOT validated:
//   - Embedding (populated by the seeder)
//   - ID (derived from content when empty)
func ValidateRecipe(recipe *Recipe) error {
	if recipe == nil {
		return fmt.Errorf("%w: recipe is nil", ErrInvalidRecipe)
	}
	if strings.TrimSpace(recipe.Name) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecipe, ErrEmptyRecipeName)
	}
	return nil
}
