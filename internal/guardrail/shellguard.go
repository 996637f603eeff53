package guardrail

import (
	"fmt"
	"regexp"
	"strings"
)

// shellGuard validates shell commands against a policy's allow/deny rules.
type shellGuard struct {
	policy *Policy
}

func newShellGuard(p *Policy) *shellGuard {
	return &shellGuard{policy: p}
}

// validate tokenizes cmd, rejects empty commands, deny-operator and
// deny-pattern matches, leading tokens outside the effective allowlist, and
// (unless allowAnyCwd) a cwd outside the write roots. It returns the leading
// command token on success.
func (g *shellGuard) validate(cmd, cwd string) (string, error) {
	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return "", fmt.Errorf("empty command")
	}
	for _, op := range g.policy.Shell.DenyOperators {
		if op != "" && strings.Contains(cmd, op) {
			return "", fmt.Errorf("command contains denied operator %q", op)
		}
	}
	for _, pattern := range g.policy.Shell.DenyPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(cmd) {
			return "", fmt.Errorf("command matches denied pattern %q", pattern)
		}
	}
	fields := strings.Fields(trimmed)
	lead := fields[0]
	for _, deny := range g.policy.Shell.DenyPrefixes {
		if lead == deny {
			return "", fmt.Errorf("command %q is denied", lead)
		}
	}
	if !containsString(g.policy.EffectiveAllowedPrefixes(), lead) {
		return "", fmt.Errorf("command %q is not allowed", lead)
	}
	if cwd != "" && !g.policy.Shell.AllowAnyCwd {
		guard := newPathGuard(g.policy)
		if _, err := guard.resolveAndVerifyRoot("write", cwd); err != nil {
			return "", fmt.Errorf("cwd %q is not allowed: %w", cwd, err)
		}
	}
	return lead, nil
}

// destructive reports whether cmd matches a known destructive prefix or
// pattern and therefore requires confirmation before execution.
func (g *shellGuard) destructive(cmd string) bool {
	fields := strings.Fields(strings.TrimSpace(cmd))
	if len(fields) == 0 {
		return false
	}
	lead := fields[0]
	for _, prefix := range g.policy.Shell.DestructivePrefixes {
		if lead == prefix {
			return true
		}
	}
	for _, pattern := range g.policy.Shell.DestructivePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(cmd) {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
