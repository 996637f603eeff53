package guardrail

import (
	"fmt"
	"log/slog"
)

// Guard is the public surface of the guardrail package: it reads the current
// policy from a Store on every call (so hot-reloads take effect immediately)
// and mediates filesystem and shell actions through the confirmation store.
type Guard struct {
	store         *Store
	confirmations *ConfirmationStore
	logger        *slog.Logger
}

// NewGuard builds a Guard over store. If confirmations is nil, one is created
// using the store's current policy TTL.
func NewGuard(store *Store, confirmations *ConfirmationStore, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default().With("component", "guardrail")
	}
	if confirmations == nil {
		confirmations = NewConfirmationStore(store.Policy().TTL(), nil)
	}
	return &Guard{store: store, confirmations: confirmations, logger: logger}
}

// Policy returns the currently active policy (e.g. for tool-mode checks).
func (g *Guard) Policy() *Policy {
	return g.store.Policy()
}

// CheckRead verifies path lies within an allowed read or write root and is
// not protected. It never requires confirmation.
func (g *Guard) CheckRead(path string) (string, error) {
	return newPathGuard(g.Policy()).resolveAndVerifyRoot("read", path)
}

// CheckFSAction verifies every path in paths for action, then, if action is
// in the policy's confirm-actions list, runs the confirmation challenge
// protocol keyed on a fingerprint of (action, paths).
func (g *Guard) CheckFSAction(action string, paths []string, confirmationToken string) ([]string, error) {
	policy := g.Policy()
	pg := newPathGuard(policy)

	resolved := make([]string, len(paths))
	for i, p := range paths {
		r, err := pg.resolveAndVerifyRoot(action, p)
		if err != nil {
			return nil, err
		}
		resolved[i] = r
	}

	if !policy.RequiresConfirmation(action) {
		return resolved, nil
	}
	return resolved, g.challenge(policy, CanonicalFingerprint(append([]string{action}, resolved...)...), confirmationToken)
}

// CheckMove verifies src against the read/write roots and dst against the
// write roots, re-checking the source per §4.B, then runs the confirmation
// protocol under "move" or "move_overwrite" depending on overwrite.
func (g *Guard) CheckMove(src, dst, confirmationToken string, overwrite bool) (resolvedSrc, resolvedDst string, err error) {
	policy := g.Policy()
	pg := newPathGuard(policy)

	resolvedSrc, err = pg.resolveAndVerifyRoot("read", src)
	if err != nil {
		return "", "", err
	}
	resolvedDst, err = pg.resolveAndVerifyRoot("write", dst)
	if err != nil {
		return "", "", err
	}

	action := "move"
	if overwrite {
		action = "move_overwrite"
	}
	if !policy.RequiresConfirmation(action) {
		return resolvedSrc, resolvedDst, nil
	}
	fingerprint := CanonicalFingerprint(action, resolvedSrc, resolvedDst)
	if err := g.challenge(policy, fingerprint, confirmationToken); err != nil {
		return "", "", err
	}
	return resolvedSrc, resolvedDst, nil
}

// CheckShell validates cmd against the shell policy and, if the command is
// destructive, runs the confirmation protocol. It returns the leading command
// token on success.
func (g *Guard) CheckShell(cmd, cwd, confirmationToken string) (string, error) {
	policy := g.Policy()
	sg := newShellGuard(policy)

	lead, err := sg.validate(cmd, cwd)
	if err != nil {
		return "", err
	}
	if !sg.destructive(cmd) {
		return lead, nil
	}
	fingerprint := CanonicalFingerprint("shell_exec", cmd, cwd)
	if err := g.challenge(policy, fingerprint, confirmationToken); err != nil {
		return "", err
	}
	return lead, nil
}

func (g *Guard) challenge(policy *Policy, fingerprint, confirmationToken string) error {
	if confirmationToken == "" {
		slot := g.confirmations.Require(fingerprint)
		return &ConfirmationRequiredError{
			OperationID: slot.OperationID,
			TokenFormat: policy.TokenPrefix() + "{operationId}",
			ExpiresAt:   slot.ExpiresAt,
		}
	}
	return g.confirmations.Verify(policy.TokenPrefix(), confirmationToken, fingerprint)
}

// FormatToken renders the confirmation token for a given operation id under
// the current policy's prefix.
func (g *Guard) FormatToken(operationID string) string {
	return fmt.Sprintf("%s%s", g.Policy().TokenPrefix(), operationID)
}
