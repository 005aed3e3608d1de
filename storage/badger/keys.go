package badger

import (
	"fmt"
)

const (
	recipePrefix     = "rcp"
	checkpointPrefix = "chkpt"
)

// makeNamespace scopes all keys of one index so several indexes can share a database.
// Format: rcp:label:index:
func makeNamespace(label, index string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:", recipePrefix, label, index))
}

// makeRecipeKey generates a key for a recipe by ID.
// Format: namespace + rec:id
func makeRecipeKey(namespace []byte, id string) []byte {
	key := make([]byte, 0, len(namespace)+4+len(id))
	key = append(key, namespace...)
	key = append(key, "rec:"...)
	return append(key, id...)
}

// makeRecipePrefix generates the iteration prefix covering every recipe of an index.
func makeRecipePrefix(namespace []byte) []byte {
	key := make([]byte, 0, len(namespace)+4)
	key = append(key, namespace...)
	return append(key, "rec:"...)
}

// makeDimensionsKey generates the key holding an index's vector length.
func makeDimensionsKey(namespace []byte) []byte {
	key := make([]byte, 0, len(namespace)+4)
	key = append(key, namespace...)
	return append(key, "dims"...)
}

// makeCheckpointKey generates a key for job checkpoints.
func makeCheckpointKey(job string) []byte {
	return []byte(fmt.Sprintf("%s:%s", checkpointPrefix, job))
}
