// Package verify implements the deterministic verification-gate classifier
// that decides whether an agent step's tool output satisfies a run's
// success criteria, without invoking an LLM.
package verify

import (
	"fmt"
	"regexp"
	"strings"
)

// Method names the way a Result was produced.
type Method string

// MethodGate is the only method this package produces; an LLM-based
// fallback verifier uses other method names and is not implemented here.
const MethodGate Method = "gate"

// ToolCallOutcome is one tool call's contribution to an act step, reduced
// to the fields the gates need.
type ToolCallOutcome struct {
	Tool   string
	Output string
	Error  string
}

func (o ToolCallOutcome) failed() bool { return o.Error != "" }

// ActOutput is the reduced view of one act step handed to CheckGates.
type ActOutput struct {
	ToolCalls []ToolCallOutcome
	FinalText string
}

// Result is the verdict returned by a matching gate.
type Result struct {
	Passed   bool
	Method   Method
	Evidence string
}

var noProgressPhrases = []string{
	"(no matches)",
	"not found",
	"no such file",
	"does not exist",
	"no results",
	"nothing found",
	"no matches found",
}

func isNoProgressOutput(output string) bool {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range noProgressPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

var discoveryVerbPattern = regexp.MustCompile(`(?i)\b(find|locate|search|discover|path|file|directory|folder|where)\b`)

func mentionsDiscoveryVerb(criteria string) bool {
	return discoveryVerbPattern.MatchString(criteria)
}

var allowsConfirmationPattern = regexp.MustCompile(`(?i)\b(confirm|verify|ensure)\b`)
var allowsAbsencePattern = regexp.MustCompile(`(?i)\b(absence|missing|not found|doesn't exist|does not exist|no longer exists)\b`)

// allowsAbsence reports whether the success criteria explicitly accepts a
// "confirmed absent" outcome as success, e.g. "verify the file is missing".
func allowsAbsence(criteria string) bool {
	return allowsConfirmationPattern.MatchString(criteria) && allowsAbsencePattern.MatchString(criteria)
}

var criticalErrorPattern = regexp.MustCompile(`(?i)(permission denied|eacces|unauthorized|forbidden|validation error)`)

func isCriticalError(errMsg string) bool {
	return criticalErrorPattern.MatchString(errMsg)
}

// CheckGates runs the nine ordered gates from §4.E against one act step's
// output and the run's success criteria. It returns nil when no gate
// matches, signaling the caller should fall back to an LLM-based verifier.
func CheckGates(act ActOutput, successCriteria string) *Result {
	trimmedFinal := strings.TrimSpace(act.FinalText)

	// Gate 1: no tool calls and non-empty final text.
	if len(act.ToolCalls) == 0 && trimmedFinal != "" {
		return &Result{Passed: true, Method: MethodGate, Evidence: "No tool calls were needed; the assistant answered directly."}
	}

	var failed, succeeded []ToolCallOutcome
	for _, call := range act.ToolCalls {
		if call.failed() {
			failed = append(failed, call)
		} else {
			succeeded = append(succeeded, call)
		}
	}

	// Gate 2: every tool call failed.
	if len(act.ToolCalls) > 0 && len(failed) == len(act.ToolCalls) {
		return &Result{Passed: false, Method: MethodGate, Evidence: "All tool calls failed: " + joinErrors(failed)}
	}

	// Gate 3: every successful call is a no-progress phrase and the criteria
	// asks for discovery without allowing "confirmed absent" as success.
	if len(succeeded) > 0 && allNoProgress(succeeded) &&
		mentionsDiscoveryVerb(successCriteria) && !allowsAbsence(successCriteria) {
		return &Result{
			Passed:   false,
			Method:   MethodGate,
			Evidence: "Every successful call returned a no-progress result and the task required locating something: " + joinOutputs(succeeded),
		}
	}

	usefulOutput := trimmedFinal != "" || anyUseful(succeeded)
	criticalBlocker, blockerEvidence := firstCriticalError(failed)

	// Gate 4: useful output, but a failed call is a critical blocker.
	if usefulOutput && criticalBlocker {
		return &Result{Passed: false, Method: MethodGate, Evidence: "A critical failure blocks the task despite other useful output: " + blockerEvidence}
	}

	// Gate 5: useful output, no critical blocker.
	if usefulOutput && !criticalBlocker {
		evidence := "Produced useful output toward the success criteria."
		if len(failed) > 0 {
			evidence += " Non-critical failures occurred: " + joinErrors(failed)
		}
		return &Result{Passed: true, Method: MethodGate, Evidence: evidence}
	}

	// Gate 6: no useful output, critical blocker.
	if !usefulOutput && criticalBlocker {
		return &Result{Passed: false, Method: MethodGate, Evidence: "No useful output and a critical failure: " + blockerEvidence}
	}

	// Gate 7: no useful output, any failed call.
	if !usefulOutput && len(failed) > 0 {
		return &Result{Passed: false, Method: MethodGate, Evidence: "No useful output was produced and tool calls failed: " + joinErrors(failed)}
	}

	// Gate 8: all calls succeeded and produced some output.
	if len(act.ToolCalls) > 0 && len(failed) == 0 && someOutput(succeeded, trimmedFinal) {
		return &Result{Passed: true, Method: MethodGate, Evidence: "All tool calls succeeded and produced output."}
	}

	// Gate 9: no gate matches; defer to an LLM-based verifier.
	return nil
}

func allNoProgress(calls []ToolCallOutcome) bool {
	for _, c := range calls {
		if !isNoProgressOutput(c.Output) {
			return false
		}
	}
	return true
}

func anyUseful(calls []ToolCallOutcome) bool {
	for _, c := range calls {
		if !isNoProgressOutput(c.Output) {
			return true
		}
	}
	return false
}

func someOutput(succeeded []ToolCallOutcome, finalText string) bool {
	if finalText != "" {
		return true
	}
	for _, c := range succeeded {
		if strings.TrimSpace(c.Output) != "" {
			return true
		}
	}
	return false
}

func firstCriticalError(failed []ToolCallOutcome) (bool, string) {
	for _, c := range failed {
		if isCriticalError(c.Error) {
			return true, fmt.Sprintf("%s: %s", c.Tool, c.Error)
		}
	}
	return false, ""
}

func joinErrors(calls []ToolCallOutcome) string {
	parts := make([]string, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Tool, c.Error))
	}
	return strings.Join(parts, "; ")
}

func joinOutputs(calls []ToolCallOutcome) string {
	parts := make([]string, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, fmt.Sprintf("%s: %q", c.Tool, c.Output))
	}
	return strings.Join(parts, "; ")
}
