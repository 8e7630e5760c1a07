package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgeoftrust/watchrelay/internal/ui"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the watch session",
}

// sessionEndCmd is wired as a Stop/SessionEnd hook and is also usable by
// hand. Clears the queue so a late approval cannot land on a dead session.
var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the watch session and clear pending approvals",
	RunE: func(cmd *cobra.Command, args []string) error {
		pairingID := currentPairingID()
		if pairingID == "" {
			return fmt.Errorf("watch not paired")
		}

		if err := relayClient.EndSession(context.Background(), pairingID); err != nil {
			return err
		}
		fmt.Printf("%s Session ended.\n", ui.RenderAccent("✓"))
		return nil
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		pairingID := currentPairingID()
		if pairingID == "" {
			return fmt.Errorf("watch not paired")
		}
		ctx := context.Background()

		active, err := relayClient.SessionActive(ctx, pairingID)
		if err != nil {
			return err
		}
		pending, err := relayClient.ListPending(ctx, pairingID)
		if err != nil {
			return err
		}

		state := "active"
		if !active {
			state = "ended"
		}
		fmt.Printf("session:  %s\n", state)
		fmt.Printf("pending:  %d\n", len(pending))
		for _, req := range pending {
			fmt.Printf("  %s  %s %s\n", ui.RenderMuted(req.ID), ui.RenderCommand(string(req.Type)), req.Title)
		}
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
}
