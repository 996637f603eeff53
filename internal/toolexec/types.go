// Package toolexec implements the tool name registry, schema-shape
// validation, and guardrail-consulting dispatch described by §4.C.
package toolexec

import (
	"context"
	"encoding/json"
)

// CallContext carries the run identity available to a tool at call time.
type CallContext struct {
	ClientID  string
	RunID     string
	SessionID string
}

// Result is the uniform outcome of a tool call.
type Result struct {
	OK     bool           `json:"ok"`
	Output string         `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Ok builds a successful result.
func Ok(output string) *Result {
	return &Result{OK: true, Output: output}
}

// Err builds a failed result. Meta may carry structured detail such as a
// confirmation challenge.
func Err(message string, meta map[string]any) *Result {
	return &Result{OK: false, Error: message, Meta: meta}
}

// Tool is a static-after-registration tool definition: a name, description,
// an object-shape JSON schema for its input, and an execute function.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage, call CallContext) (*Result, error)
}
