package agentloop

// Config bounds the loop's iteration behavior.
type Config struct {
	// BaseStepLimit is the step budget before any tool calls are made.
	BaseStepLimit int
	// StepLimitPerTool extends the budget by this many steps per tool call made.
	StepLimitPerTool int
	// MaxStepLimit caps the effective limit regardless of tool calls made.
	MaxStepLimit int
	// NoProgressLimit bounds consecutive non-act steps before the loop gives up.
	NoProgressLimit int
}

// DefaultConfig returns the loop's default bounds.
func DefaultConfig() Config {
	return Config{
		BaseStepLimit:    14,
		StepLimitPerTool: 1,
		MaxStepLimit:     30,
		NoProgressLimit:  5,
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BaseStepLimit <= 0 {
		cfg.BaseStepLimit = defaults.BaseStepLimit
	}
	if cfg.StepLimitPerTool <= 0 {
		cfg.StepLimitPerTool = defaults.StepLimitPerTool
	}
	if cfg.MaxStepLimit <= 0 {
		cfg.MaxStepLimit = defaults.MaxStepLimit
	}
	if cfg.NoProgressLimit <= 0 {
		cfg.NoProgressLimit = defaults.NoProgressLimit
	}
	return cfg
}

// effectiveLimit is min(base + toolCallsMade*perTool, max).
func (c Config) effectiveLimit(toolCallsMade int) int {
	limit := c.BaseStepLimit + toolCallsMade*c.StepLimitPerTool
	if limit > c.MaxStepLimit {
		return c.MaxStepLimit
	}
	return limit
}
