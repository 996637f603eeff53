// Package main provides the CLI entry point for the agent execution core:
// it boots the session store, guardrail, tool executor, and pulse scheduler
// from a config file, and runs a bounded agent step loop per incoming
// request. The provider (LLM turn generation) is supplied by the caller;
// this binary wires the core and leaves that seam open.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/agentloop"
	"github.com/Saieshwar5/ayati-a1-sub001/internal/config"
	"github.com/Saieshwar5/ayati-a1-sub001/internal/datetime"
	"github.com/Saieshwar5/ayati-a1-sub001/internal/guardrail"
	"github.com/Saieshwar5/ayati-a1-sub001/internal/promptctx"
	"github.com/Saieshwar5/ayati-a1-sub001/internal/pulse"
	"github.com/Saieshwar5/ayati-a1-sub001/internal/sessionmem"
	"github.com/Saieshwar5/ayati-a1-sub001/internal/toolexec"
)

var (
	version = "dev"
	commit  = "none"

	configPath string
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ayati",
		Short:        "Agent execution core: session memory, guardrail, tools, and pulse reminders",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "ayati.yaml", "path to the config file")
	rootCmd.AddCommand(buildServeCmd(), buildPulseCmd())
	return rootCmd
}

// core bundles every component the CLI wires together.
type core struct {
	cfg       *config.Config
	logger    *slog.Logger
	guard     *guardrail.Guard
	executor  *toolexec.Executor
	memory    *sessionmem.Manager
	pulse     *pulse.Store
	scheduler *pulse.Scheduler
	provider  agentloop.Provider
}

func bootCore(cfgPath string) (*core, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Logging.Level)})
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Logging.Level)})
	}
	logger := slog.New(handler)

	policyStore, err := guardrail.NewStore(cfg.Guardrail.PolicyFile, logger)
	if err != nil {
		return nil, fmt.Errorf("load guardrail policy: %w", err)
	}
	confirmations := guardrail.NewConfirmationStore(policyStore.Policy().TTL(), time.Now)
	guard := guardrail.NewGuard(policyStore, confirmations, logger)

	executor := toolexec.NewExecutor(guard, logger)
	executor.Register(toolexec.NewReadTool(guard))
	executor.Register(toolexec.NewWriteTool(guard))
	executor.Register(toolexec.NewDeleteTool(guard))
	executor.Register(toolexec.NewMoveTool(guard))
	executor.Register(toolexec.NewShellExecTool(guard))

	memory, err := sessionmem.New(cfg.Storage.BaseDir, logger, time.Now)
	if err != nil {
		return nil, fmt.Errorf("open session memory: %w", err)
	}

	store, err := pulse.New(cfg.Storage.BaseDir, time.Now)
	if err != nil {
		return nil, fmt.Errorf("open pulse store: %w", err)
	}

	c := &core{cfg: cfg, logger: logger, guard: guard, executor: executor, memory: memory, pulse: store}
	c.scheduler = pulse.NewScheduler(store, c.deliverReminder,
		pulse.WithLogger(logger), pulse.WithTickInterval(cfg.Pulse.TickInterval))
	return c, nil
}

// deliverReminder turns a due reminder into a new bounded agent run, the way
// an incoming user message does: the reminder's instruction becomes the
// run's user content. Until a Provider is wired in, the run fails fast with
// a clear error instead of silently no-oping.
func (c *core) deliverReminder(ctx context.Context, event pulse.DueEvent) error {
	c.logger.Info("reminder due", "reminder_id", event.ReminderID, "title", event.Title)

	if c.provider == nil {
		return fmt.Errorf("reminder run for %s: no provider wired (set core.provider before starting the scheduler)", event.ReminderID)
	}

	_, err := agentloop.New(nil).Run(ctx, agentloop.RunRequest{
		ClientID:      event.OriginSessionID,
		RunID:         event.EventID,
		SessionID:     event.OriginSessionID,
		UserContent:   event.Instruction,
		SystemContext: promptctx.Assemble(promptctx.Sections{Base: "You are following up on a scheduled reminder."}),
		Executor:      c.executor,
		Memory:        c.memory,
		Provider:      c.provider,
	})
	if err != nil {
		return fmt.Errorf("reminder run for %s: %w", event.ReminderID, err)
	}
	return nil
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the pulse scheduler and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bootCore(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := c.scheduler.Start(ctx); err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}
			c.logger.Info("agent core ready", "storage", c.cfg.Storage.BaseDir)
			<-ctx.Done()
			c.logger.Info("shutting down")
			return c.scheduler.Stop(context.Background())
		},
	}
}

func buildPulseCmd() *cobra.Command {
	pulseCmd := &cobra.Command{Use: "pulse", Short: "Inspect and manage scheduled reminders"}
	pulseCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bootCore(configPath)
			if err != nil {
				return err
			}
			format := datetime.ResolveUserTimeFormat(datetime.TimeFormatPreference(c.cfg.Pulse.TimeFormat))
			for _, r := range c.pulse.List(pulse.StatusActive, 0) {
				fmt.Printf("%s\t%s\t%s\n", r.ID, r.Title, formatNextTrigger(r, format))
			}
			return nil
		},
	})
	return pulseCmd
}

// formatNextTrigger renders a reminder's next trigger time the way a user
// configured it, falling back to "(no upcoming trigger)" once it's done.
func formatNextTrigger(r *pulse.Reminder, format datetime.ResolvedTimeFormat) string {
	if r.NextTriggerAt == nil {
		return "(no upcoming trigger)"
	}
	formatted := datetime.FormatUserTimeWithTimezone(*r.NextTriggerAt, r.Timezone, format)
	if formatted == "" {
		return r.NextTriggerAt.String()
	}
	return formatted
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
