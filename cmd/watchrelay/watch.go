package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeoftrust/watchrelay/internal/events"
	"github.com/edgeoftrust/watchrelay/internal/ui"
)

// watchCmd tails relay lifecycle events from NATS. Ops tooling; requires
// RELAY_NATS_URL on both the relay and here.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail relay events from the event bus",
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL := os.Getenv("RELAY_NATS_URL")
		if natsURL == "" {
			return fmt.Errorf("RELAY_NATS_URL is not set")
		}

		sub, err := events.NewNATSSubscriber(natsURL)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe("relay.>")
		if err != nil {
			return err
		}
		defer cancel()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Println(ui.RenderMuted("watching relay events (ctrl-c to stop)"))
		for {
			select {
			case <-ctx.Done():
				return nil
			case data, ok := <-ch:
				if !ok {
					return nil
				}
				printEvent(data)
			}
		}
	},
}

func printEvent(data []byte) {
	ts := time.Now().Format("15:04:05")

	// Re-indent compactly; fall back to the raw payload.
	var compact map[string]any
	if err := json.Unmarshal(data, &compact); err != nil {
		fmt.Printf("%s %s\n", ui.RenderMuted(ts), string(data))
		return
	}
	line, err := json.Marshal(compact)
	if err != nil {
		line = data
	}
	fmt.Printf("%s %s\n", ui.RenderMuted(ts), string(line))
}
