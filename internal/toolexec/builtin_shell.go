package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/guardrail"
)

// ShellExecInput is the shell_exec tool's input shape.
type ShellExecInput struct {
	Cmd               string `json:"cmd"`
	Cwd               string `json:"cwd,omitempty"`
	ConfirmationToken string `json:"confirmationToken,omitempty"`
}

type shellExecTool struct{ guard *guardrail.Guard }

// NewShellExecTool builds the "shell.exec" tool. Destructive commands
// (per policy) require confirmation.
func NewShellExecTool(guard *guardrail.Guard) Tool { return &shellExecTool{guard: guard} }

func (t *shellExecTool) Name() string { return "shell.exec" }
func (t *shellExecTool) Description() string {
	return "Execute a shell command whose leading token is in the effective allowlist."
}
func (t *shellExecTool) Schema() json.RawMessage { return reflectSchema(&ShellExecInput{}) }

func (t *shellExecTool) Execute(ctx context.Context, input json.RawMessage, _ CallContext) (*Result, error) {
	var in ShellExecInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Err(fmt.Sprintf("invalid input: %v", err), nil), nil
	}
	if _, err := t.guard.CheckShell(in.Cmd, in.Cwd, in.ConfirmationToken); err != nil {
		if res, ok := confirmationResult(err); ok {
			return res, nil
		}
		return Err(err.Error(), nil), nil
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", in.Cmd)
	if in.Cwd != "" {
		cmd.Dir = in.Cwd
	}
	var out strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return Err(err.Error(), map[string]any{"output": out.String()}), nil
	}
	return Ok(out.String()), nil
}
