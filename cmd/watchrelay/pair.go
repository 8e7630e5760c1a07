package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeoftrust/watchrelay/internal/ui"
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair a watch with this machine",
	Long: `Requests a pairing code from the relay, displays it, and waits for the
watch to enter it. The resulting pairing ID is saved and used by the
approval hooks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		res, err := relayClient.Initiate(ctx, "")
		if err != nil {
			return fmt.Errorf("requesting pairing code: %w", err)
		}

		fmt.Println()
		fmt.Println("  Enter this code on your watch:")
		fmt.Println()
		fmt.Printf("      %s\n", ui.RenderCode(res.Code))
		fmt.Println()

		deadline := time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		for {
			remaining := time.Until(deadline).Round(time.Second)
			if remaining <= 0 {
				fmt.Println()
				return fmt.Errorf("pairing code expired, run pair again")
			}
			fmt.Printf("\r  %s", ui.RenderMuted(fmt.Sprintf("Waiting for watch... %s left ", remaining)))

			status, err := relayClient.Status(ctx, res.WatchID)
			if err == nil && status.Paired {
				cfg, _ := loadCLIConfig()
				cfg.RelayURL = relayURL
				cfg.PairingID = status.PairingID
				cfg.WatchID = res.WatchID
				if err := saveCLIConfig(cfg); err != nil {
					return fmt.Errorf("saving pairing: %w", err)
				}

				fmt.Println()
				fmt.Println()
				fmt.Printf("  %s Watch paired.\n", ui.RenderAccent("✓"))
				fmt.Printf("  %s\n", ui.RenderMuted("pairing id "+status.PairingID))
				return nil
			}

			select {
			case <-ctx.Done():
				fmt.Println()
				return ctx.Err()
			case <-ticker.C:
			}
		}
	},
}
