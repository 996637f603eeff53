// Package promptctx assembles the per-turn system prompt from fixed-order
// optional sections and estimates token counts for context-size reporting,
// per §4.H.
package promptctx

import (
	"fmt"
	"strings"
)

// Sections holds the pre-rendered content for each prompt section. Base and
// Soul are foundational persona text and are emitted without a heading, the
// way the teacher's identity/experiment-prompt lines open its system
// prompt; the remaining sections get a deterministic Markdown heading.
type Sections struct {
	Base          string
	Soul          string
	UserProfile   string
	Conversation  string
	Memory        string
	Skills        string
	Tools         string
	SessionStatus string
}

// Assemble renders the fixed section order (base, soul, user_profile,
// conversation, memory, skills, tools, session_status), each emitted only if
// non-empty.
func Assemble(s Sections) string {
	var parts []string

	if base := strings.TrimSpace(s.Base); base != "" {
		parts = append(parts, base)
	}
	if soul := strings.TrimSpace(s.Soul); soul != "" {
		parts = append(parts, soul)
	}
	parts = appendHeaded(parts, "User profile", s.UserProfile)
	parts = appendHeaded(parts, "Conversation", s.Conversation)
	parts = appendHeaded(parts, "Memory", s.Memory)
	parts = appendHeaded(parts, "Skills", s.Skills)
	parts = appendHeaded(parts, "Tools", s.Tools)
	parts = appendHeaded(parts, "Session status", s.SessionStatus)

	return strings.Join(parts, "\n\n")
}

func appendHeaded(parts []string, heading, content string) []string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return parts
	}
	return append(parts, fmt.Sprintf("## %s\n\n%s", heading, trimmed))
}
