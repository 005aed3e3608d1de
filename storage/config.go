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
	"slices"
	"strings"

	"github.com/poiesic/nomnom/core"
)

// IndexConfig describes how recipes were laid out when the vector index was built.
type IndexConfig struct {
	// IndexName names the vector index inside the store.
	IndexName string `yaml:"index_name"`

	// NodeLabel is the record category holding recipes.
	NodeLabel string `yaml:"node_label"`

	// TextProperties lists the fields that were embedded to build the index,
	// in the order they were concatenated.
	TextProperties []string `yaml:"text_properties"`

	// EmbeddingProperty is the field holding the stored vector.
	EmbeddingProperty string `yaml:"embedding_property"`

	// Dimensions is the expected vector length. Zero trusts the store.
	Dimensions int `yaml:"dimensions"`
}

// DefaultIndexConfig returns the layout used by the recipe loader.
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		IndexName:         "vectorIndexForRecipes",
		NodeLabel:         "Recipe",
		TextProperties:    []string{"joined_ingredients", "name", "cleaned_contents"},
		EmbeddingProperty: "embedding",
	}
}

var knownTextProperties = []string{"name", "joined_ingredients", "cleaned_contents", "contents"}

// Validate checks that every field needed to query the index is present.
func (c IndexConfig) Validate() error {
	if c.IndexName == "" {
		return fmt.Errorf("%w: index config: IndexName is required", core.ErrConfiguration)
	}
	if c.NodeLabel == "" {
		return fmt.Errorf("%w: index config: NodeLabel is required", core.ErrConfiguration)
	}
	if len(c.TextProperties) == 0 {
		return fmt.Errorf("%w: index config: TextProperties is required", core.ErrConfiguration)
	}
	for _, p := range c.TextProperties {
		if !slices.Contains(knownTextProperties, p) {
			return fmt.Errorf("%w: index config: unknown text property %q", core.ErrConfiguration, p)
		}
	}
	if c.EmbeddingProperty == "" {
		return fmt.Errorf("%w: index config: EmbeddingProperty is required", core.ErrConfiguration)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("%w: index config: Dimensions must not be negative", core.ErrConfiguration)
	}
	return nil
}

// EmbeddingText renders the text that is embedded for recipe, one
// "property: value" line per text property, each preceded by a newline.
func (c IndexConfig) EmbeddingText(recipe *core.Recipe) string {
	var b strings.Builder
	for _, p := range c.TextProperties {
		b.WriteString("\n")
		b.WriteString(p)
		b.WriteString(": ")
		b.WriteString(recipe.Property(p))
	}
	return b.String()
}
