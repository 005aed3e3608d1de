package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/nomnom/core"
	"gopkg.in/yaml.v3"
)

// Recipe file formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// recipeFile is the wrapped form of a recipe file. A bare list of recipes
// is accepted as well.
type recipeFile struct {
	Recipes []*core.Recipe `json:"recipes" yaml:"recipes"`
}

// FormatFromPath picks the recipe file format from the file extension.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// LoadRecipes reads and validates every recipe in the file at path.
func LoadRecipes(path string) ([]*core.Recipe, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	recipes, err := ReadRecipes(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recipes, nil
}

// ReadRecipes decodes recipes in the given format from r. Recipes that
// fail validation are reported by position.
func ReadRecipes(r io.Reader, format string) ([]*core.Recipe, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var recipes []*core.Recipe
	switch format {
	case FormatYAML:
		recipes, err = decodeYAML(data)
	case FormatJSON:
		recipes, err = decodeJSON(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	for i, recipe := range recipes {
		if err := core.ValidateRecipe(recipe); err != nil {
			return nil, fmt.Errorf("recipe %d: %w", i, err)
		}
	}
	return recipes, nil
}

func decodeYAML(data []byte) ([]*core.Recipe, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	if doc.Kind == yaml.SequenceNode {
		var recipes []*core.Recipe
		err := doc.Decode(&recipes)
		return recipes, err
	}

	var file recipeFile
	err := doc.Decode(&file)
	return file.Recipes, err
}

func decodeJSON(data []byte) ([]*core.Recipe, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var recipes []*core.Recipe
		err := json.Unmarshal(trimmed, &recipes)
		return recipes, err
	}

	var file recipeFile
	err := json.Unmarshal(trimmed, &file)
	return file.Recipes, err
}
