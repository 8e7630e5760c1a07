package hook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/edgeoftrust/watchrelay/internal/client"
	"github.com/edgeoftrust/watchrelay/internal/model"
)

// Decision is the outcome of an approval round-trip.
type Decision int

const (
	// DecisionPassthrough means the watch is out of the picture; the
	// terminal's own permission flow takes over.
	DecisionPassthrough Decision = iota

	// DecisionAllow means the watch approved the action.
	DecisionAllow

	// DecisionDeny means the watch rejected the action (or the session is
	// paused, or the wait timed out).
	DecisionDeny
)

// Result carries the decision and a message for the agent's stderr.
type Result struct {
	Decision Decision
	Message  string
}

const (
	defaultPollInterval = time.Second
	defaultWaitTimeout  = 5 * time.Minute
)

// Runner drives one approval round-trip against the relay.
type Runner struct {
	client       *client.Client
	pairingID    string
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// NewRunner creates a runner for the given relay client and pairing.
func NewRunner(c *client.Client, pairingID string) *Runner {
	return &Runner{
		client:       c,
		pairingID:    pairingID,
		pollInterval: defaultPollInterval,
		waitTimeout:  defaultWaitTimeout,
	}
}

// Run submits the tool invocation for approval and blocks until a decision
// arrives or the wait times out. The relay being unreachable is never fatal
// to the agent: every transport failure falls back to the terminal.
func (r *Runner) Run(ctx context.Context, in *Input) *Result {
	if !NeedsApproval(in.ToolName) {
		return &Result{Decision: DecisionPassthrough}
	}

	active, err := r.client.SessionActive(ctx, r.pairingID)
	if err == nil && !active {
		return &Result{
			Decision: DecisionPassthrough,
			Message:  "Watch session ended. Using terminal mode.",
		}
	}

	interrupted, err := r.client.GetInterrupt(ctx, r.pairingID)
	if err == nil && interrupted {
		return &Result{
			Decision: DecisionDeny,
			Message:  "Session paused from watch. Tap Resume on watch to continue.",
		}
	}

	// Client-supplied ID so a lost enqueue response is still pollable.
	sub := &client.ApprovalSubmission{
		PairingID:   r.pairingID,
		ID:          uuid.NewString(),
		Type:        MapToolType(in.ToolName).String(),
		Title:       BuildTitle(in),
		Description: BuildDescription(in),
		FilePath:    TargetPath(in),
		Command:     in.ToolInput.Command,
	}
	if _, err := r.client.Enqueue(ctx, sub); err != nil {
		return &Result{
			Decision: DecisionPassthrough,
			Message:  "Relay unavailable: " + err.Error(),
		}
	}

	return r.wait(ctx, sub.ID)
}

// wait polls the request status once a second until it reaches a terminal
// state. Timeout is a rejection: an unattended watch must not silently
// allow the action.
func (r *Runner) wait(ctx context.Context, requestID string) *Result {
	deadline := time.Now().Add(r.waitTimeout)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		st, err := r.client.PollStatus(ctx, r.pairingID, requestID)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.NotFound() {
				return &Result{
					Decision: DecisionPassthrough,
					Message:  "Watch session ended. Falling back to terminal mode.",
				}
			}
			// Transient failure; keep polling until the deadline.
		} else {
			switch st.Status {
			case model.StatusApproved:
				return &Result{Decision: DecisionAllow}
			case model.StatusRejected:
				return &Result{Decision: DecisionDeny, Message: "Action rejected by watch"}
			case model.StatusExpired:
				return &Result{
					Decision: DecisionPassthrough,
					Message:  "Approval request expired. Falling back to terminal mode.",
				}
			}
		}

		select {
		case <-ctx.Done():
			return &Result{Decision: DecisionPassthrough, Message: "Interrupted"}
		case <-ticker.C:
		}
	}

	// Mark the request rejected so the watch cannot approve an action that
	// was already denied here. Best-effort: if the relay is unreachable the
	// entry ages out on its own.
	_, _ = r.client.Resolve(ctx, requestID, r.pairingID, false)
	return &Result{Decision: DecisionDeny, Message: "Approval timed out"}
}

// AllowOutput is the PreToolUse response the agent expects on approval.
func AllowOutput() []byte {
	return []byte(`{"hookSpecificOutput":{"hookEventName":"PreToolUse","permissionDecision":"allow"}}`)
}
