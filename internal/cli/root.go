// Package cli defines the command-line interface for depconfctl.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/depconfctl/internal/logging"
)

const (
	// defaultConfigPath is the default path to the session file.
	defaultConfigPath = "session.yaml"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath string
	StatePath  string
	LogLevel   logging.Level
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	rootOpts := &Options{
		ConfigPath: defaultConfigPath,
		LogLevel:   logging.LevelInfo,
	}

	rootCmd, err := newRootCommand(rootOpts, logger)
	if err != nil {
		return err
	}
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
// Flag defaults come from DEPCONFCTL_* variables.
func newRootCommand(opts *Options, logger *slog.Logger) (*cobra.Command, error) {
	var defaults baseEnv
	if err := parseEnv(&defaults); err != nil {
		return nil, fmt.Errorf("parse DEPCONFCTL_* env: %w", err)
	}
	configPath := defaultConfigPath
	if defaults.ConfigPath != "" {
		configPath = defaults.ConfigPath
	}
	logLevel := "info"
	if envPresent("DEPCONFCTL_LOG_LEVEL") {
		logLevel = defaults.LogLevel
	}

	cmd := &cobra.Command{
		Use:           "depconfctl",
		Short:         "depconfctl reconciles dependent configuration recommendations",
		Long:          "depconfctl edits a cluster configuration session, asks the stack advisor for values of dependent properties and applies the accepted suggestions.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logging.ParseLevel(cmd.Flag("log-level").Value.String())
			if err != nil {
				return err
			}
			opts.LogLevel = level
			logger = logging.NewLogger(cmd.ErrOrStderr(), level)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", configPath, "Path to session.yaml")
	cmd.PersistentFlags().StringVar(&opts.StatePath, "state", defaults.StatePath, "Path to the state file (default .depconfctl-state.json next to the session file)")
	cmd.PersistentFlags().String("log-level", logLevel, "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRecommendCommand(opts),
		newChangesCommand(opts),
		newApplyCommand(opts),
		newDecisionCommand(opts, true),
		newDecisionCommand(opts, false),
		newClearCommand(opts),
		newRenderCommand(opts),
	)

	return cmd, nil
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}
