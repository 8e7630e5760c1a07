// Package push delivers best-effort wake-up notifications to the watch.
//
// Push is an optimization over the watch's own poll loop, never the only
// delivery path: enqueue must succeed whether or not the notification does.
// Failures are classified so the caller can drop dead tokens and honor
// rate limits, and everything else is logged and swallowed.
package push

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBadToken means the gateway reported the device token unregistered
	// or malformed. The caller should drop the token and rely on polling.
	ErrBadToken = errors.New("push: device token unregistered or invalid")
)

// RateLimitedError means the gateway asked us to back off. No inline retry
// is attempted; the watch's poll loop covers delivery.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("push: rate limited, retry after %s", e.RetryAfter)
}

// Notification categories the watch app registers actions for.
const (
	CategoryAction   = "AGENT_ACTION"
	CategoryQuestion = "AGENT_QUESTION"
)

// Notification is the payload for one wake-up: an approval request or a
// routed question. Category selects which; empty means CategoryAction.
type Notification struct {
	Title    string
	Body     string
	Subtitle string
	Badge    int
	Category string

	// Approval fields, so the watch can render the request without a
	// round-trip.
	RequestID    string
	Type         string
	ReqTitle     string
	Description  string
	FilePath     string
	Command      string
	PendingCount int

	// Question fields.
	QuestionID        string
	Question          string
	RecommendedAnswer string
}

// Dispatcher sends notifications to a device token.
type Dispatcher interface {
	// Send posts one notification. It returns ErrBadToken, a
	// *RateLimitedError, or an opaque error for everything else.
	Send(ctx context.Context, deviceToken string, n *Notification) error
}

// NoopDispatcher is a Dispatcher that does nothing (used when APNs is not
// configured; the watch then relies entirely on polling).
type NoopDispatcher struct{}

func (NoopDispatcher) Send(ctx context.Context, deviceToken string, n *Notification) error {
	return nil
}
