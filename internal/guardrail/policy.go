// Package guardrail implements the tool-access policy, path and shell guards,
// and the confirmation-token challenge/response store that gate destructive
// tool operations.
package guardrail

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
)

// ToolMode is the global tool-access mode.
type ToolMode string

const (
	ModeOff       ToolMode = "off"
	ModeAllowlist ToolMode = "allowlist"
	ModeFull      ToolMode = "full"
)

// ShellProfile selects a pre-configured shell command allowlist.
type ShellProfile string

const (
	ShellReadOnly  ShellProfile = "read_only"
	ShellDeveloper ShellProfile = "developer"
	ShellPowerUser ShellProfile = "power_user"
)

// ShellProfileDefaults maps a profile to its base allowed command prefixes.
// Each profile's set is additive over the previous one.
var ShellProfileDefaults = map[ShellProfile][]string{
	ShellReadOnly:  {"ls", "cat", "pwd", "echo", "grep", "find", "head", "tail", "wc", "stat"},
	ShellDeveloper: {"git", "go", "npm", "node", "python", "python3", "make", "cargo"},
	ShellPowerUser: {"curl", "wget", "docker", "kubectl", "ssh"},
}

var shellProfileOrder = []ShellProfile{ShellReadOnly, ShellDeveloper, ShellPowerUser}

// FilesystemPolicy configures the path guard.
type FilesystemPolicy struct {
	AllowedReadRoots  []string `json:"allowedReadRoots"`
	AllowedWriteRoots []string `json:"allowedWriteRoots"`
	ProtectedPaths    []string `json:"protectedPaths,omitempty"`
	ProtectedGlobs    []string `json:"protectedGlobs,omitempty"`
	ConfirmActions    []string `json:"confirmActions"`
	SearchCap         int      `json:"searchCap"`
	ListCap           int      `json:"listCap"`
}

// ShellPolicy configures the shell guard.
type ShellPolicy struct {
	Profile                 ShellProfile `json:"profile"`
	AllowedPrefixes         []string     `json:"allowedPrefixes,omitempty"`
	DenyPrefixes            []string     `json:"denyPrefixes,omitempty"`
	DenyOperators           []string     `json:"denyOperators,omitempty"`
	DenyPatterns            []string     `json:"denyPatterns,omitempty"`
	DestructivePrefixes     []string     `json:"destructivePrefixes,omitempty"`
	DestructivePatterns     []string     `json:"destructivePatterns,omitempty"`
	AllowedScriptExtensions []string     `json:"allowedScriptExtensions,omitempty"`
	AllowAnyCwd             bool         `json:"allowAnyCwd"`
}

// ConfirmationPolicy configures the confirmation token format and lifetime.
type ConfirmationPolicy struct {
	TokenPrefix string `json:"tokenPrefix"`
	TTLSeconds  int    `json:"ttlSeconds"`
}

// Policy is the full guardrail policy document, loaded from
// context/tool-access.json and hot-reloaded on change.
type Policy struct {
	Mode         ToolMode            `json:"mode"`
	Allow        []string            `json:"allow,omitempty"`
	Filesystem   FilesystemPolicy    `json:"filesystem"`
	Shell        ShellPolicy         `json:"shell"`
	Confirmation ConfirmationPolicy  `json:"confirmation"`
}

// Default returns the conservative built-in policy used before any file or
// environment override is applied.
func Default() *Policy {
	return &Policy{
		Mode: ModeAllowlist,
		Filesystem: FilesystemPolicy{
			ConfirmActions: []string{"delete", "move_overwrite"},
			SearchCap:      200,
			ListCap:        500,
		},
		Shell: ShellPolicy{
			Profile:             ShellReadOnly,
			DenyOperators:       []string{"|", ";", "&&", "||", "$(", "`", ">", ">>"},
			DestructivePrefixes: []string{"rm", "rmdir", "mkfs", "dd", "shutdown", "reboot"},
		},
		Confirmation: ConfirmationPolicy{
			TokenPrefix: "CONFIRM:",
			TTLSeconds:  60,
		},
	}
}

// TTL returns the confirmation token lifetime, defaulting to 60s.
func (p *Policy) TTL() time.Duration {
	if p.Confirmation.TTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.Confirmation.TTLSeconds) * time.Second
}

// TokenPrefix returns the confirmation token prefix, defaulting to "CONFIRM:".
func (p *Policy) TokenPrefix() string {
	if p.Confirmation.TokenPrefix == "" {
		return "CONFIRM:"
	}
	return p.Confirmation.TokenPrefix
}

// RequiresConfirmation reports whether action is in the confirm-actions list.
func (p *Policy) RequiresConfirmation(action string) bool {
	for _, a := range p.Filesystem.ConfirmActions {
		if a == action {
			return true
		}
	}
	return false
}

// EffectiveAllowedPrefixes is the union of the shell profile's defaults (and
// every profile beneath it) and the user-declared allowed prefixes.
func (p *Policy) EffectiveAllowedPrefixes() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(items []string) {
		for _, item := range items {
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	for _, profile := range shellProfileOrder {
		add(ShellProfileDefaults[profile])
		if profile == p.Shell.Profile {
			break
		}
	}
	add(p.Shell.AllowedPrefixes)
	return out
}

// ToolAllowed reports whether name is permitted under the current mode.
func (p *Policy) ToolAllowed(name string) bool {
	switch p.Mode {
	case ModeOff:
		return false
	case ModeAllowlist:
		for _, allowed := range p.Allow {
			if allowed == name {
				return true
			}
		}
		return false
	default: // ModeFull and unknown modes fail open, matching "full" semantics
		return true
	}
}

// Load reads the policy document at path, falling back to Default() fields
// when the file is absent, then applies environment-variable overrides.
func Load(path string) (*Policy, error) {
	p := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, p); err != nil {
				return nil, fmt.Errorf("parse guardrail policy %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// no file yet; env fallback and defaults apply
		default:
			return nil, fmt.Errorf("read guardrail policy %s: %w", path, err)
		}
	}
	applyEnv(p)
	return p, nil
}

func applyEnv(p *Policy) {
	if v, ok := os.LookupEnv("TOOLS_ENABLED"); ok && strings.EqualFold(v, "false") {
		p.Mode = ModeOff
	}
	if v := os.Getenv("TOOLS_MODE"); v != "" {
		p.Mode = ToolMode(v)
	}
	if v := os.Getenv("TOOLS_ALLOWED"); v != "" {
		p.Allow = splitCSV(v)
	}
	if v := os.Getenv("SHELL_TOOL_PROFILE"); v != "" {
		p.Shell.Profile = ShellProfile(v)
	}
	if v := os.Getenv("SHELL_TOOL_ALLOWED_PREFIXES"); v != "" {
		p.Shell.AllowedPrefixes = append(p.Shell.AllowedPrefixes, splitCSV(v)...)
	}
	if v, ok := os.LookupEnv("SHELL_TOOL_ALLOW_ANY_CWD"); ok {
		p.Shell.AllowAnyCwd = strings.EqualFold(v, "true")
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// Schema returns the JSON Schema for Policy, generated once via reflection so
// the schema can never drift from the Go struct.
func Schema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{FieldNameTag: "json"}
		schema := r.Reflect(&Policy{})
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}
