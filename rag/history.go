package rag

import (
	"strings"

	"github.com/poiesic/nomnom/core"
)

// Line prefixes for formatted chat history.
const (
	HumanPrefix     = "Human: "
	AssistantPrefix = "AI: "
)

var lineFlattener = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// FormatHistory renders turns oldest first, one line per turn. Line breaks
// inside a turn are replaced with spaces so no turn spans several lines.
// Turns with a role other than Human are rendered as the assistant; callers
// validate roles beforehand.
func FormatHistory(turns []core.Turn) string {
	if len(turns) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, turn := range turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if turn.Role == core.RoleHuman {
			sb.WriteString(HumanPrefix)
		} else {
			sb.WriteString(AssistantPrefix)
		}
		sb.WriteString(lineFlattener.Replace(turn.Content))
	}
	return sb.String()
}
