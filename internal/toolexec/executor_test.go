package toolexec

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/guardrail"
)

func newTestExecutor(t *testing.T, dir string) *Executor {
	t.Helper()
	policy := guardrail.Default()
	policy.Mode = guardrail.ModeFull
	policy.Filesystem.AllowedReadRoots = []string{dir}
	policy.Filesystem.AllowedWriteRoots = []string{dir}

	guard := guardrail.NewGuard(guardrail.NewStoreWithPolicy(policy), guardrail.NewConfirmationStore(policy.TTL(), nil), nil)

	exec := NewExecutor(guard, nil)
	exec.Register(NewReadTool(guard))
	exec.Register(NewWriteTool(guard))
	exec.Register(NewDeleteTool(guard))
	return exec
}

func TestExecutorUnknownTool(t *testing.T) {
	exec := newTestExecutor(t, t.TempDir())
	res, err := exec.Execute(context.Background(), "does_not_exist", nil, CallContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.OK {
		t.Fatal("expected failure for unknown tool")
	}
	if res.Error != "Unknown tool: does_not_exist" {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestExecutorWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	exec := newTestExecutor(t, dir)

	writeInput, _ := json.Marshal(WriteInput{Path: filepath.Join(dir, "note.txt"), Content: "hello"})
	res, err := exec.Execute(context.Background(), "write", writeInput, CallContext{})
	if err != nil || !res.OK {
		t.Fatalf("write: res=%+v err=%v", res, err)
	}

	readInput, _ := json.Marshal(ReadInput{Path: filepath.Join(dir, "note.txt")})
	res, err = exec.Execute(context.Background(), "read", readInput, CallContext{})
	if err != nil || !res.OK {
		t.Fatalf("read: res=%+v err=%v", res, err)
	}
	if res.Output != "hello" {
		t.Errorf("Output = %q, want %q", res.Output, "hello")
	}
}

func TestExecutorShapeValidationRejectsMissingRequiredField(t *testing.T) {
	exec := newTestExecutor(t, t.TempDir())
	res, err := exec.Execute(context.Background(), "write", json.RawMessage(`{"path":"x"}`), CallContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.OK {
		t.Fatal("expected shape validation failure for missing content field")
	}
}

func TestExecutorDeleteRequiresConfirmation(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	os.WriteFile(file, []byte("x"), 0o644)
	exec := newTestExecutor(t, dir)

	input, _ := json.Marshal(DeleteInput{Path: file})
	res, err := exec.Execute(context.Background(), "delete", input, CallContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.OK {
		t.Fatal("expected confirmation-required failure")
	}
	if res.Meta["requiresConfirmation"] != true {
		t.Errorf("meta = %+v, want requiresConfirmation=true", res.Meta)
	}
}

func TestRegistryDropsDuplicate(t *testing.T) {
	dir := t.TempDir()
	exec := newTestExecutor(t, dir)
	before := len(exec.Definitions())
	exec.Register(NewReadTool(nil))
	if len(exec.Definitions()) != before {
		t.Fatalf("expected duplicate registration to be dropped, definitions = %d, want %d", len(exec.Definitions()), before)
	}
}
