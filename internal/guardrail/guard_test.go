package guardrail

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestGuard(t *testing.T, policy *Policy) *Guard {
	t.Helper()
	return NewGuard(NewStoreWithPolicy(policy), NewConfirmationStore(policy.TTL(), nil), nil)
}

// S1 — filesystem delete requires confirmation.
func TestDeleteRequiresConfirmation(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	policy := Default()
	policy.Filesystem.AllowedWriteRoots = []string{dir}

	g := newTestGuard(t, policy)

	_, err := g.CheckFSAction("delete", []string{file}, "")
	var confirmErr *ConfirmationRequiredError
	if !errors.As(err, &confirmErr) {
		t.Fatalf("expected ConfirmationRequiredError, got %v", err)
	}

	token := g.FormatToken(confirmErr.OperationID)
	if _, err := g.CheckFSAction("delete", []string{file}, token); err != nil {
		t.Fatalf("confirmed delete: %v", err)
	}
}

func TestConfirmationTokenSingleUse(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	os.WriteFile(file, []byte("x"), 0o644)

	policy := Default()
	policy.Filesystem.AllowedWriteRoots = []string{dir}
	g := newTestGuard(t, policy)

	_, err := g.CheckFSAction("delete", []string{file}, "")
	var confirmErr *ConfirmationRequiredError
	errors.As(err, &confirmErr)
	token := g.FormatToken(confirmErr.OperationID)

	if _, err := g.CheckFSAction("delete", []string{file}, token); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if _, err := g.CheckFSAction("delete", []string{file}, token); !errors.Is(err, ErrInvalidConfirmation) {
		t.Fatalf("second use = %v, want ErrInvalidConfirmation", err)
	}
}

// S2 — tool allowlist blocks shell.
func TestShellAllowlist(t *testing.T) {
	policy := Default()
	policy.Mode = ModeAllowlist
	policy.Shell.Profile = ShellReadOnly
	policy.Shell.AllowedPrefixes = []string{"echo", "pwd"}

	g := newTestGuard(t, policy)

	if _, err := g.CheckShell("uname -a", "", ""); err == nil {
		t.Fatal("expected uname to be rejected")
	} else if !strings.Contains(err.Error(), "not allowed") {
		t.Fatalf("error = %q, want to contain %q", err.Error(), "not allowed")
	}

	if _, err := g.CheckShell("echo hello", "", ""); err != nil {
		t.Fatalf("echo hello: %v", err)
	}
}

func TestShellDeniesOperators(t *testing.T) {
	policy := Default()
	policy.Shell.AllowedPrefixes = []string{"echo"}
	g := newTestGuard(t, policy)

	if _, err := g.CheckShell("echo hi && rm -rf /", "", ""); err == nil {
		t.Fatal("expected command-chain operator to be rejected")
	}
}

func TestProtectedPathRejected(t *testing.T) {
	dir := t.TempDir()
	protected := filepath.Join(dir, "secrets.json")
	os.WriteFile(protected, []byte("{}"), 0o644)

	policy := Default()
	policy.Filesystem.AllowedReadRoots = []string{dir}
	policy.Filesystem.ProtectedPaths = []string{protected}
	g := newTestGuard(t, policy)

	if _, err := g.CheckRead(protected); err == nil {
		t.Fatal("expected protected path to be rejected")
	}
}
