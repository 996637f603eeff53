// Package config loads and validates the runtime's configuration file: where
// the session, pulse, and guardrail stores live on disk, and the bounds that
// shape an agent run. Loading goes through LoadRaw (loader.go) so a config
// file can $include others, then decodes into Config and applies defaults
// and env overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration document.
type Config struct {
	Version int `yaml:"version"`

	Storage   StorageConfig   `yaml:"storage"`
	Guardrail GuardrailConfig `yaml:"guardrail"`
	Agentloop AgentloopConfig `yaml:"agentloop"`
	Pulse     PulseConfig     `yaml:"pulse"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig roots every component's on-disk store under one base
// directory unless overridden individually.
type StorageConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// GuardrailConfig names the guardrail policy file. ConfirmationStore is
// decoded and defaulted but not read by any component: confirmation slots
// are held in memory by guardrail.ConfirmationStore.
type GuardrailConfig struct {
	PolicyFile        string `yaml:"policy_file"`
	ConfirmationStore string `yaml:"confirmation_store"`
}

// AgentloopConfig holds agent step-loop bounds. They are decoded, defaulted
// and validated here, but cmd/ayati does not pass them to agentloop, whose
// runs use agentloop.DefaultConfig.
type AgentloopConfig struct {
	BaseStepLimit      int `yaml:"base_step_limit"`
	StepsPerToolCall   int `yaml:"steps_per_tool_call"`
	MaxStepLimit       int `yaml:"max_step_limit"`
	NoProgressLimit    int `yaml:"no_progress_limit"`
	ScratchpadMaxLines int `yaml:"scratchpad_max_lines"`
}

// PulseConfig configures the reminder store and scheduler.
type PulseConfig struct {
	// StoreFile (and its PULSE_STORE_FILE_PATH override) is not read by the
	// pulse store, which opens <storage.base_dir>/pulse/reminders.json.
	StoreFile    string        `yaml:"store_file"`
	TickInterval time.Duration `yaml:"tick_interval"`

	// TimeFormat controls how reminder times are rendered for humans:
	// "auto" (detect from host), "12", or "24". See internal/datetime.
	TimeFormat string `yaml:"time_format"`
}

// LoggingConfig configures the slog handler used across every component.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path, resolving $include directives, decodes it into a Config,
// applies environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if cfg.Version != 0 {
		if err := ValidateVersion(cfg.Version); err != nil {
			return nil, err
		}
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Storage.BaseDir == "" {
		cfg.Storage.BaseDir = "./data"
	}
	if cfg.Guardrail.PolicyFile == "" {
		cfg.Guardrail.PolicyFile = "context/tool-access.json"
	}
	if cfg.Guardrail.ConfirmationStore == "" {
		cfg.Guardrail.ConfirmationStore = "guardrail/confirmations.json"
	}
	if cfg.Agentloop.BaseStepLimit <= 0 {
		cfg.Agentloop.BaseStepLimit = 8
	}
	if cfg.Agentloop.StepsPerToolCall <= 0 {
		cfg.Agentloop.StepsPerToolCall = 2
	}
	if cfg.Agentloop.MaxStepLimit <= 0 {
		cfg.Agentloop.MaxStepLimit = 40
	}
	if cfg.Agentloop.NoProgressLimit <= 0 {
		cfg.Agentloop.NoProgressLimit = 5
	}
	if cfg.Pulse.StoreFile == "" {
		cfg.Pulse.StoreFile = "pulse/reminders.json"
	}
	if cfg.Pulse.TickInterval <= 0 {
		cfg.Pulse.TickInterval = 30 * time.Second
	}
	if cfg.Pulse.TimeFormat == "" {
		cfg.Pulse.TimeFormat = "auto"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// applyEnvOverrides lets deployment env vars win over whatever the config
// file says.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv("PULSE_STORE_FILE_PATH")); v != "" {
		cfg.Pulse.StoreFile = v
	}
	if v := strings.TrimSpace(os.Getenv("PULSE_TICK_INTERVAL")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Pulse.TickInterval = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("AGENT_STORAGE_BASE_DIR")); v != "" {
		cfg.Storage.BaseDir = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENT_MAX_STEP_LIMIT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Agentloop.MaxStepLimit = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("AGENT_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
}

// ConfigValidationError collects every validation issue found in one pass,
// rather than failing on the first.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	var issues []string

	if cfg.Agentloop.BaseStepLimit > cfg.Agentloop.MaxStepLimit {
		issues = append(issues, fmt.Sprintf("agentloop.base_step_limit (%d) exceeds agentloop.max_step_limit (%d)", cfg.Agentloop.BaseStepLimit, cfg.Agentloop.MaxStepLimit))
	}
	if cfg.Agentloop.NoProgressLimit <= 0 {
		issues = append(issues, "agentloop.no_progress_limit must be positive")
	}
	if cfg.Pulse.TickInterval < time.Second {
		issues = append(issues, "pulse.tick_interval must be at least 1s")
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("logging.format %q must be text or json", cfg.Logging.Format))
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
