package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgeoftrust/watchrelay/internal/client"
	"github.com/edgeoftrust/watchrelay/internal/ui"
)

var (
	relayURL    string
	relayClient *client.Client
)

func defaultRelayURL() string {
	if s := os.Getenv("RELAY_URL"); s != "" {
		return s
	}
	if cfg, err := loadCLIConfig(); err == nil && cfg.RelayURL != "" {
		return cfg.RelayURL
	}
	return "http://localhost:8787"
}

var rootCmd = &cobra.Command{
	Use:   "watchrelay <command>",
	Short: "Relay approval requests between a coding agent and a paired watch",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		relayClient = client.New(relayURL)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay-url", defaultRelayURL(), "relay base URL")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}

	level := slog.LevelInfo
	if os.Getenv("RELAY_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
