// Package ingestion populates a recipe index.
//
// LoadRecipes reads recipe records from a YAML or JSON file. The Seeder
// embeds each recipe's text properties in batches on a worker pool, retries
// transient embedding failures with exponential backoff, and writes the
// embedded recipes to a storage.RecipeRepository. When a checkpoint
// repository is configured, an interrupted run resumes after the last batch
// that was fully written.
package ingestion
