package agentloop

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/toolexec"
)

const scratchpadMarker = "\n--- Scratchpad ---"

// maxFormattedToolResultChars bounds the LLM-visible length of a formatted
// tool result.
const maxFormattedToolResultChars = 4000

// buildSystemMessage strips anything after scratchpadMarker from base and
// re-appends the current scratchpad block, so every iteration sees a fresh
// rendering of the run's progress.
func buildSystemMessage(base string, state *RunState) string {
	if idx := strings.Index(base, scratchpadMarker); idx >= 0 {
		base = base[:idx]
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString(scratchpadMarker)
	b.WriteString("\n")
	for _, entry := range state.Scratchpad {
		fmt.Fprintf(&b, "Step %d [%s]: %s\n", entry.Step, entry.Phase, entry.Summary)
		if entry.ToolResult != "" {
			b.WriteString("  Result: ")
			b.WriteString(entry.ToolResult)
			b.WriteString("\n")
		}
	}
	if approaches := sortedApproaches(state.ApproachesTried); len(approaches) > 0 {
		b.WriteString("Approaches tried: ")
		b.WriteString(strings.Join(approaches, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

func sortedApproaches(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// formatToolResult deterministically renders a tool result to the string
// the LLM sees, truncating to a fixed size.
func formatToolResult(result *toolexec.Result) string {
	if result == nil {
		return "(no result)"
	}
	var s string
	if result.OK {
		s = result.Output
	} else {
		s = "Error: " + result.Error
	}
	if len(s) > maxFormattedToolResultChars {
		s = s[:maxFormattedToolResultChars] + "...[truncated]"
	}
	return s
}
