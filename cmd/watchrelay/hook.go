package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgeoftrust/watchrelay/internal/hook"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Agent hook entrypoints (reads the hook payload from stdin)",
}

// hookApprovalCmd is wired as a PreToolUse hook. Exit code 0 with the allow
// payload approves; exit 2 denies; exit 0 with no payload defers to the
// terminal's own permission flow.
var hookApprovalCmd = &cobra.Command{
	Use:   "approval",
	Short: "Route a tool invocation to the watch for approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		pairingID := currentPairingID()
		if pairingID == "" {
			fmt.Fprintln(os.Stderr, "Watch not paired. Run 'watchrelay pair' to set up.")
			return nil
		}

		in, err := hook.ParseInput(os.Stdin)
		if err != nil {
			// A malformed payload must never block the agent.
			return nil
		}

		res := hook.NewRunner(relayClient, pairingID).Run(context.Background(), in)
		if res.Message != "" {
			fmt.Fprintln(os.Stderr, res.Message)
		}
		switch res.Decision {
		case hook.DecisionAllow:
			os.Stdout.Write(hook.AllowOutput())
			fmt.Println()
		case hook.DecisionDeny:
			os.Exit(2)
		}
		return nil
	},
}

// hookQuestionCmd is wired as a PreToolUse hook on AskUserQuestion. An
// accepted recommendation is printed as the answers payload; every other
// outcome exits 0 silently so the terminal shows the question itself.
var hookQuestionCmd = &cobra.Command{
	Use:   "question",
	Short: "Route a question with a recommended answer to the watch",
	RunE: func(cmd *cobra.Command, args []string) error {
		pairingID := currentPairingID()
		if pairingID == "" {
			return nil
		}

		in, err := hook.ParseInput(os.Stdin)
		if err != nil {
			return nil
		}

		res := hook.NewQuestionRunner(relayClient, pairingID).Run(context.Background(), in)
		if res.Answered {
			os.Stdout.Write(hook.AnswersOutput(res.Header, res.Answer))
			fmt.Println()
		}
		return nil
	},
}

// hookProgressCmd is wired as a PostToolUse hook on TodoWrite. Best-effort:
// a relay failure never surfaces to the agent.
var hookProgressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Publish the agent's task list to the watch",
	RunE: func(cmd *cobra.Command, args []string) error {
		pairingID := currentPairingID()
		if pairingID == "" {
			return nil
		}

		in, err := hook.ParseInput(os.Stdin)
		if err != nil {
			return nil
		}
		progress := hook.BuildProgress(pairingID, in)
		if progress == nil {
			return nil
		}

		_ = relayClient.SetProgress(context.Background(), progress)
		return nil
	},
}

func init() {
	hookCmd.AddCommand(hookApprovalCmd)
	hookCmd.AddCommand(hookQuestionCmd)
	hookCmd.AddCommand(hookProgressCmd)
}
