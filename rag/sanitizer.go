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
	"bytes"
	"encoding/json"
	"strings"

	"github.com/poiesic/nomnom/core"
)

// contextRecord is the only shape in which a recipe reaches the model.
// Field order here fixes the key order of the serialized context.
type contextRecord struct {
	Name              string `json:"name"`
	JoinedIngredients string `json:"joined_ingredients"`
	CleanedContents   string `json:"cleaned_contents"`
}

var allowedContextFields = []string{"name", "joined_ingredients", "cleaned_contents"}

// AllowedContextFields lists the recipe fields that may appear in the
// model context, in serialization order.
func AllowedContextFields() []string {
	return append([]string(nil), allowedContextFields...)
}

// Sanitize projects recipes onto the context allow-list and serializes them
// as one compact JSON object per line, in input order. Identifiers,
// embeddings, timestamps, thumbnails, raw contents and ingredient arrays are
// dropped from every record. Nil records are skipped.
func Sanitize(recipes []*core.Recipe) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	lines := make([]string, 0, len(recipes))
	for _, recipe := range recipes {
		if recipe == nil {
			continue
		}
		buf.Reset()
		// Encoding a struct of strings cannot fail
		_ = enc.Encode(contextRecord{
			Name:              recipe.Name,
			JoinedIngredients: recipe.JoinedIngredients,
			CleanedContents:   recipe.CleanedContents,
		})
		lines = append(lines, strings.TrimSuffix(buf.String(), "\n"))
	}
	return strings.Join(lines, "\n")
}
