package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier for recipes.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as fixed-width lowercase hex.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Role identifies the author of a conversation turn.
type Role int

const (
	// RoleHuman is the person asking questions.
	RoleHuman Role = iota + 1
	// RoleAssistant is the recipe assistant.
	RoleAssistant
	// RoleSystem carries fixed instructions. It never appears in chat history.
	RoleSystem
)

func (r Role) String() string {
	switch r {
	case RoleHuman:
		return "human"
	case RoleAssistant:
		return "assistant"
	case RoleSystem:
		return "system"
	default:
		return "unknown(" + strconv.Itoa(int(r)) + ")"
	}
}

// ParseRole maps wire names onto roles. Both "assistant" and "ai" are
// accepted for the assistant since older clients send either.
func ParseRole(s string) (Role, error) {
	switch s {
	case "human", "user":
		return RoleHuman, nil
	case "assistant", "ai":
		return RoleAssistant, nil
	default:
		return 0, ErrInvalidRole
	}
}

// Turn is one entry of a chat history.
type Turn struct {
	Role    Role
	Content string
}

// Request is a single question with its prior conversation, oldest turn first.
type Request struct {
	Query   string
	History []Turn
}

// Recipe is a node record stored in the vector index. Field names on the
// wire match the property names used when the index was built.
type Recipe struct {
	ID                string    `bson:"id,omitempty" json:"id,omitempty" yaml:"id,omitempty"`
	Name              string    `bson:"name" json:"name" yaml:"name"`
	JoinedIngredients string    `bson:"joined_ingredients" json:"joined_ingredients" yaml:"joined_ingredients"`
	CleanedContents   string    `bson:"cleaned_contents" json:"cleaned_contents" yaml:"cleaned_contents"`
	Contents          string    `bson:"contents,omitempty" json:"contents,omitempty" yaml:"contents,omitempty"`
	Embedding         []float32 `bson:"embedding,omitempty" json:"embedding,omitempty" yaml:"-"`
	ThumbnailURL      string    `bson:"thumbnail_url,omitempty" json:"thumbnail_url,omitempty" yaml:"thumbnail_url,omitempty"`
	CreatedAt         time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt         time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
	IngredientsQty    []string  `bson:"ingredients_qty,omitempty" json:"ingredients_qty,omitempty" yaml:"ingredients_qty,omitempty"`
	Ingredients       []string  `bson:"ingredients,omitempty" json:"ingredients,omitempty" yaml:"ingredients,omitempty"`
}

// Property returns the text value of a named property, or "" when the
// property is unknown or not textual.
func (r *Recipe) Property(name string) string {
	switch name {
	case "name":
		return r.Name
	case "joined_ingredients":
		return r.JoinedIngredients
	case "cleaned_contents":
		return r.CleanedContents
	case "contents":
		return r.Contents
	default:
		return ""
	}
}

// SearchResult is a recipe returned by similarity search with its score.
type SearchResult struct {
	Recipe *Recipe
	Score  float32
}

// Message is one entry of the instruction sequence sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Prompt is the fully composed instruction sequence for one request.
// Messages holds the system message followed by the question.
type Prompt struct {
	SystemInstructions string
	Context            string
	History            string
	Question           string
	Messages           []Message
}

// Checkpoint records how far a resumable job has progressed through its input.
type Checkpoint struct {
	Job       string    `bson:"job"`
	Source    string    `bson:"source"`
	Processed int       `bson:"processed"`
	UpdatedAt time.Time `bson:"updatedAt"`
}
