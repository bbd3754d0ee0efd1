// Package main provides the CLI entry point for the Hearth assistant
// backend: a multi-channel gateway that connects messaging platforms
// (Telegram, Slack, Discord, WhatsApp, Matrix, Mattermost) to LLM
// providers (OpenAI, Anthropic, Bedrock, Gemini) through a single
// planner loop, with durable memory recall and scheduled/background
// tool execution.
//
// # Basic Usage
//
// Start the server:
//
//	hearth serve --config hearth.yaml
//
// Manage database migrations:
//
//	hearth migrate up
//	hearth migrate status
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd assembles the root command with all subcommands
// attached. Kept separate from main so tests can exercise it without
// calling os.Exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hearth",
		Short: "Hearth - multi-channel AI assistant gateway",
		Long: `Hearth connects messaging platforms to LLM providers with durable
memory and tool execution.

Supported channels: Telegram, Slack, Discord, WhatsApp, Matrix, Mattermost
Supported LLM providers: OpenAI, Anthropic, Bedrock, Gemini`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
	)

	return rootCmd
}
