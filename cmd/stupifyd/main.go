package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mdnaeem95/stupify-extension/cmd/stupifyd/commands"
	"github.com/mdnaeem95/stupify-extension/logger"
)

var rootCmd = &cobra.Command{
	Use:   "stupifyd",
	Short: "Stupify offline daemon - explanation cache, request queue, and sync",
	Long: `Stupify offline daemon.

Runs the offline-resilience core of the Stupify extension: the explanation
cache, the durable request queue, the background sync engine, and the local
server the extension UI talks to.

Available commands:
  serve  - Run the daemon (connectivity monitor, sync engine, local server)
  sync   - Run a one-shot sync pass against the backend
  stats  - Show cache, queue, and sync state
  queue  - Inspect or clear the pending request queue

Examples:
  stupifyd serve                 # Run until interrupted
  stupifyd sync                  # Drain the queue once
  stupifyd stats                 # Show offline stats
  stupifyd queue list            # List pending requests
  stupifyd queue clear           # Drop all pending requests`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")
	rootCmd.PersistentFlags().String("db-path", "", "Custom database path (overrides config)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.SyncCmd)
	rootCmd.AddCommand(commands.StatsCmd)
	rootCmd.AddCommand(commands.QueueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
