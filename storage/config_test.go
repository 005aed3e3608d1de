package storage

import (
	"testing"

	"github.com/poiesic/nomnom/core"
	"github.com/stretchr/testify/assert"
)

func TestDefaultIndexConfigIsValid(t *testing.T) {
	cfg := DefaultIndexConfig()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "vectorIndexForRecipes", cfg.IndexName)
	assert.Equal(t, "Recipe", cfg.NodeLabel)
	assert.Equal(t, "embedding", cfg.EmbeddingProperty)
}

func TestIndexConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*IndexConfig)
		field  string
	}{
		{"missing index name", func(c *IndexConfig) { c.IndexName = "" }, "IndexName"},
		{"missing node label", func(c *IndexConfig) { c.NodeLabel = "" }, "NodeLabel"},
		{"missing text properties", func(c *IndexConfig) { c.TextProperties = nil }, "TextProperties"},
		{"unknown text property", func(c *IndexConfig) { c.TextProperties = []string{"thumbnail_url"} }, "thumbnail_url"},
		{"missing embedding property", func(c *IndexConfig) { c.EmbeddingProperty = "" }, "EmbeddingProperty"},
		{"negative dimensions", func(c *IndexConfig) { c.Dimensions = -1 }, "Dimensions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultIndexConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			assert.ErrorIs(t, err, core.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestEmbeddingText(t *testing.T) {
	cfg := DefaultIndexConfig()
	recipe := &core.Recipe{
		Name:              "Egg Fried Rice",
		JoinedIngredients: "eggs, rice",
		CleanedContents:   "Fry.",
	}

	assert.Equal(t,
		"\njoined_ingredients: eggs, rice\nname: Egg Fried Rice\ncleaned_contents: Fry.",
		cfg.EmbeddingText(recipe))
}
