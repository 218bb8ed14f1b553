// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotandev/eventaggregator/internal/config"
	"github.com/dotandev/eventaggregator/internal/logger"
	"github.com/dotandev/eventaggregator/internal/shutdown"
)

// Global flag variables
var (
	ConfigFlag   string
	LogLevelFlag string
)

// loadedConfig is populated by PersistentPreRunE before any subcommand runs.
var loadedConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "eventagg",
	Short: "In-process publish/subscribe event aggregator",
	Long: `eventagg drives an in-process event aggregator: typed events, ordered
subscribers, cancellation and handler dispatch to the publisher, a main loop
or a background worker pool.

Examples:
  eventagg demo                         Run the chat-server scenario
  eventagg demo --notifications 100     Fan notifications out to every thread target
  eventagg config                       Print the effective configuration
  eventagg --log-level debug demo       Trace every dispatch decision`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(ConfigFlag)
		if err != nil {
			return err
		}
		if LogLevelFlag != "" {
			cfg.LogLevel = LogLevelFlag
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		if err := configureLogging(cfg); err != nil {
			return err
		}
		loadedConfig = cfg
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command until it returns or the process is
// interrupted. Shutdown hooks run in both cases.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	coordinator := shutdown.NewCoordinator(logger.Logger)
	setShutdownCoordinator(coordinator)
	defer clearShutdownCoordinator()

	err := executeWithSignals(ctx, cancel, sigCh, coordinator, rootCmd.ExecuteContext)
	runShutdownHooksWithTimeout(coordinator, shutdownTimeout)
	return err
}

func executeWithSignals(
	ctx context.Context,
	cancel context.CancelFunc,
	sigCh <-chan os.Signal,
	coordinator *shutdown.Coordinator,
	run func(context.Context) error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- run(ctx)
	}()

	select {
	case err := <-done:
		return err
	case sig := <-sigCh:
		logger.Logger.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
		runShutdownHooksWithTimeout(coordinator, shutdownTimeout)
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
		}
		return ErrInterrupted
	}
}

func configureLogging(cfg *config.Config) error {
	lvl, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)

	if cfg.LogFile == "" {
		logger.SetOutput(os.Stderr, cfg.JSONLogs())
		return nil
	}

	if err := logger.SetFile(logger.FileConfig{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	}, cfg.JSONLogs()); err != nil {
		return err
	}
	registerLogFlushHook()
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&ConfigFlag,
		"config",
		"",
		"Path to a TOML or YAML config file (default: search .eventagg.toml, ~/.eventagg.toml, /etc/eventagg/config.toml)",
	)

	rootCmd.PersistentFlags().StringVar(
		&LogLevelFlag,
		"log-level",
		"",
		"Override the log level (debug, info, warn, error)",
	)

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "utility", Title: "Utility Commands:"},
	)
}
