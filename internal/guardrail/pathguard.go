package guardrail

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// pathGuard canonicalizes and root-checks filesystem paths against a policy.
type pathGuard struct {
	policy *Policy
}

func newPathGuard(p *Policy) *pathGuard {
	return &pathGuard{policy: p}
}

// canonicalize resolves path to an absolute, symlink-resolved form. A path
// that does not yet exist (e.g. a write target) resolves its existing parent
// directories and appends the remaining, not-yet-created suffix untouched.
func (g *pathGuard) canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("resolve symlinks: %w", err)
	}
	// Walk up to the nearest existing ancestor, resolve that, then
	// reattach the missing suffix.
	dir, base := filepath.Dir(abs), filepath.Base(abs)
	resolvedDir, derr := g.canonicalize(dir)
	if derr != nil {
		return "", derr
	}
	return filepath.Join(resolvedDir, base), nil
}

func isWriteAction(action string) bool {
	return action != "read"
}

func (g *pathGuard) rootsFor(action string) []string {
	if isWriteAction(action) {
		return g.policy.Filesystem.AllowedWriteRoots
	}
	roots := make([]string, 0, len(g.policy.Filesystem.AllowedReadRoots)+len(g.policy.Filesystem.AllowedWriteRoots))
	roots = append(roots, g.policy.Filesystem.AllowedReadRoots...)
	roots = append(roots, g.policy.Filesystem.AllowedWriteRoots...)
	return roots
}

func withinRoot(resolved, root string) bool {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	rootAbs = filepath.Clean(rootAbs)
	resolved = filepath.Clean(resolved)
	if resolved == rootAbs {
		return true
	}
	return strings.HasPrefix(resolved, rootAbs+string(filepath.Separator))
}

func (g *pathGuard) withinAnyRoot(resolved string, roots []string) bool {
	for _, root := range roots {
		if withinRoot(resolved, root) {
			return true
		}
	}
	return false
}

func (g *pathGuard) isProtected(resolved string) bool {
	for _, p := range g.policy.Filesystem.ProtectedPaths {
		abs, err := filepath.Abs(p)
		if err == nil && filepath.Clean(abs) == resolved {
			return true
		}
	}
	for _, pattern := range g.policy.Filesystem.ProtectedGlobs {
		if ok, _ := filepath.Match(pattern, resolved); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(resolved)); ok {
			return true
		}
	}
	return false
}

// resolveAndVerifyRoot canonicalizes path and verifies it falls inside the
// root set appropriate for action, rejecting protected targets.
func (g *pathGuard) resolveAndVerifyRoot(action, path string) (string, error) {
	resolved, err := g.canonicalize(path)
	if err != nil {
		return "", err
	}
	roots := g.rootsFor(action)
	if len(roots) > 0 && !g.withinAnyRoot(resolved, roots) {
		return "", fmt.Errorf("path %q is outside allowed roots for %q", path, action)
	}
	if g.isProtected(resolved) {
		return "", fmt.Errorf("path %q is protected", path)
	}
	return resolved, nil
}
