package toolexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/guardrail"
)

func reflectSchema(v any) json.RawMessage {
	r := &jsonschema.Reflector{ExpandedStruct: true}
	s := r.Reflect(v)
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return b
}

func confirmationResult(err error) (*Result, bool) {
	var confirmErr *guardrail.ConfirmationRequiredError
	if !errors.As(err, &confirmErr) {
		return nil, false
	}
	return Err("confirmation required", map[string]any{
		"requiresConfirmation":   true,
		"operationId":            confirmErr.OperationID,
		"confirmationTokenFormat": confirmErr.TokenFormat,
		"expiresAt":               confirmErr.ExpiresAt,
	}), true
}

// ReadInput is the read tool's input shape.
type ReadInput struct {
	Path string `json:"path"`
}

type readTool struct{ guard *guardrail.Guard }

// NewReadTool builds the filesystem read tool.
func NewReadTool(guard *guardrail.Guard) Tool { return &readTool{guard: guard} }

func (t *readTool) Name() string        { return "read" }
func (t *readTool) Description() string { return "Read the contents of a file within an allowed root." }
func (t *readTool) Schema() json.RawMessage { return reflectSchema(&ReadInput{}) }

func (t *readTool) Execute(_ context.Context, input json.RawMessage, _ CallContext) (*Result, error) {
	var in ReadInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Err(fmt.Sprintf("invalid input: %v", err), nil), nil
	}
	resolved, err := t.guard.CheckRead(in.Path)
	if err != nil {
		return Err(err.Error(), nil), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return Err(err.Error(), nil), nil
	}
	return Ok(string(data)), nil
}

// WriteInput is the write tool's input shape.
type WriteInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type writeTool struct{ guard *guardrail.Guard }

// NewWriteTool builds the filesystem write tool.
func NewWriteTool(guard *guardrail.Guard) Tool { return &writeTool{guard: guard} }

func (t *writeTool) Name() string        { return "write" }
func (t *writeTool) Description() string { return "Write content to a file within an allowed write root." }
func (t *writeTool) Schema() json.RawMessage { return reflectSchema(&WriteInput{}) }

func (t *writeTool) Execute(_ context.Context, input json.RawMessage, _ CallContext) (*Result, error) {
	var in WriteInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Err(fmt.Sprintf("invalid input: %v", err), nil), nil
	}
	resolved, err := t.guard.CheckFSAction("write", []string{in.Path}, "")
	if err != nil {
		if res, ok := confirmationResult(err); ok {
			return res, nil
		}
		return Err(err.Error(), nil), nil
	}
	if err := os.WriteFile(resolved[0], []byte(in.Content), 0o644); err != nil {
		return Err(err.Error(), nil), nil
	}
	return Ok(fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)), nil
}

// DeleteInput is the delete tool's input shape.
type DeleteInput struct {
	Path              string `json:"path"`
	ConfirmationToken string `json:"confirmationToken,omitempty"`
}

type deleteTool struct{ guard *guardrail.Guard }

// NewDeleteTool builds the filesystem delete tool. Delete always requires
// confirmation per the default policy's confirm-actions list.
func NewDeleteTool(guard *guardrail.Guard) Tool { return &deleteTool{guard: guard} }

func (t *deleteTool) Name() string        { return "delete" }
func (t *deleteTool) Description() string { return "Delete a file within an allowed write root. Requires confirmation." }
func (t *deleteTool) Schema() json.RawMessage { return reflectSchema(&DeleteInput{}) }

func (t *deleteTool) Execute(_ context.Context, input json.RawMessage, _ CallContext) (*Result, error) {
	var in DeleteInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Err(fmt.Sprintf("invalid input: %v", err), nil), nil
	}
	resolved, err := t.guard.CheckFSAction("delete", []string{in.Path}, in.ConfirmationToken)
	if err != nil {
		if res, ok := confirmationResult(err); ok {
			return res, nil
		}
		return Err(err.Error(), nil), nil
	}
	if err := os.Remove(resolved[0]); err != nil {
		return Err(err.Error(), nil), nil
	}
	return Ok(fmt.Sprintf("deleted %s", in.Path)), nil
}

// MoveInput is the move tool's input shape.
type MoveInput struct {
	Source            string `json:"source"`
	Destination       string `json:"destination"`
	Overwrite         bool   `json:"overwrite,omitempty"`
	ConfirmationToken string `json:"confirmationToken,omitempty"`
}

type moveTool struct{ guard *guardrail.Guard }

// NewMoveTool builds the filesystem move/rename tool. Overwriting an
// existing destination requires confirmation.
func NewMoveTool(guard *guardrail.Guard) Tool { return &moveTool{guard: guard} }

func (t *moveTool) Name() string        { return "move" }
func (t *moveTool) Description() string { return "Move or rename a file. Overwriting a destination requires confirmation." }
func (t *moveTool) Schema() json.RawMessage { return reflectSchema(&MoveInput{}) }

func (t *moveTool) Execute(_ context.Context, input json.RawMessage, _ CallContext) (*Result, error) {
	var in MoveInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Err(fmt.Sprintf("invalid input: %v", err), nil), nil
	}
	overwrite := in.Overwrite
	if _, err := os.Stat(in.Destination); err == nil {
		overwrite = true
	}
	resolvedSrc, resolvedDst, err := t.guard.CheckMove(in.Source, in.Destination, in.ConfirmationToken, overwrite)
	if err != nil {
		if res, ok := confirmationResult(err); ok {
			return res, nil
		}
		return Err(err.Error(), nil), nil
	}
	if err := os.Rename(resolvedSrc, resolvedDst); err != nil {
		return Err(err.Error(), nil), nil
	}
	return Ok(fmt.Sprintf("moved %s to %s", in.Source, in.Destination)), nil
}
