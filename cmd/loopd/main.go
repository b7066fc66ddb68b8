// Package main is the loopd entry point: the agent runtime that connects
// to a backend control channel and executes tool-using conversations
// inside a sandboxed workspace.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loopkit/loopd/internal/agent"
	"github.com/loopkit/loopd/internal/config"
	"github.com/loopkit/loopd/internal/session"
	"github.com/loopkit/loopd/internal/tools"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const reconnectWait = 5 * time.Second

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loopd",
		Short: "Tool-using agent runtime",
		Long: `loopd runs tool-using AI conversations inside a sandboxed workspace.

It connects out to a backend control channel, receives init and user
messages, drives the agent loop against the configured model provider, and
streams events back.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(buildServeCmd(), buildVersionCmd())
	return cmd
}

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the backend and serve conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file (optional; environment wins)")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("loopd %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.Logging.NewLogger()
	slog.SetDefault(logger)

	metrics := tools.NewMetrics(prometheus.DefaultRegisterer)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting loopd",
		"version", version,
		"workspace", cfg.Workspace,
		"backend", cfg.BackendWSURL)

	// One session per connection; reconnect until shut down.
	for {
		client := session.NewClient(session.ClientConfig{
			URL:    cfg.BackendWSURL,
			Token:  cfg.ContainerToken,
			Logger: logger,
			Dispatcher: session.Config{
				Workspace:      tools.NewWorkspace(cfg.Workspace),
				Logger:         logger,
				Metrics:        metrics,
				SearchEndpoint: cfg.SearchEndpoint,
				AgentOptions:   []agent.Option{agent.WithLogger(logger)},
			},
		})
		if err := client.Run(ctx); err != nil {
			logger.Error("control channel session ended", "error", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-time.After(reconnectWait):
		}
	}
}
