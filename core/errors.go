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
	"errors"
	"fmt"
)

// Failure classes shared by every stage of the answer pipeline.
var (
	// ErrConfiguration indicates missing or invalid configuration. It is
	// fatal at startup or first use and is never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrUpstreamUnavailable indicates the embedding service, the vector
	// index, or the generation service failed at the transport level.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrTimeout indicates an external call exceeded its bound. It is always
	// reported together with ErrUpstreamUnavailable.
	ErrTimeout = errors.New("upstream timeout")

	// ErrMidStreamFailure indicates generation failed after fragments were
	// already delivered to the caller.
	ErrMidStreamFailure = errors.New("stream terminated abnormally")
)

// Domain validation errors
var (
	// ErrEmptyQuery indicates the query is empty after trimming.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidRole indicates a conversation turn has an unknown role.
	ErrInvalidRole = errors.New("invalid conversation role")

	// ErrInvalidVector indicates an embedding vector is empty or holds
	// NaN or infinite components.
	ErrInvalidVector = errors.New("invalid embedding vector")

	// ErrDimensionMismatch indicates a vector length differs from the
	// index dimensionality.
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrConfiguration)

	// ErrInvalidRecipe indicates a Recipe failed validation.
	ErrInvalidRecipe = errors.New("invalid recipe")

	// ErrEmptyRecipeName indicates the recipe Name field is empty.
	ErrEmptyRecipeName = errors.New("recipe name cannot be empty")
)
