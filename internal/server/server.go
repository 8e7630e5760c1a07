// Package server exposes the relay over HTTP.
//
// Handlers are stateless: every piece of cross-request state lives in the
// key-value store behind the domain packages, so the relay can be replicated
// without coordination. Authorization is possession of a pairing ID or code;
// that trust boundary is deliberate and documented, not an oversight.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edgeoftrust/watchrelay/internal/audit"
	"github.com/edgeoftrust/watchrelay/internal/events"
	"github.com/edgeoftrust/watchrelay/internal/model"
	"github.com/edgeoftrust/watchrelay/internal/pairing"
	"github.com/edgeoftrust/watchrelay/internal/push"
	"github.com/edgeoftrust/watchrelay/internal/question"
	"github.com/edgeoftrust/watchrelay/internal/queue"
	"github.com/edgeoftrust/watchrelay/internal/session"
)

// RelayServer wires the relay components behind the HTTP surface.
type RelayServer struct {
	pairings   *pairing.Manager
	queue      *queue.Queue
	questions  *question.Store
	sessions   *session.Tracker
	dispatcher push.Dispatcher
	publisher  events.Publisher
	auditLog   *audit.Log
}

// NewRelayServer returns a RelayServer over the given components. The
// dispatcher may be nil to disable push entirely; the publisher may be a
// no-op; the audit log may be nil to disable the trail.
func NewRelayServer(
	pairings *pairing.Manager,
	q *queue.Queue,
	questions *question.Store,
	sessions *session.Tracker,
	dispatcher push.Dispatcher,
	publisher events.Publisher,
	auditLog *audit.Log,
) *RelayServer {
	return &RelayServer{
		pairings:   pairings,
		queue:      q,
		questions:  questions,
		sessions:   sessions,
		dispatcher: dispatcher,
		publisher:  publisher,
		auditLog:   auditLog,
	}
}

// publish emits an event; failures are logged and never surfaced to callers.
func (s *RelayServer) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// record appends to the audit trail when one is configured.
func (s *RelayServer) record(e audit.Entry) {
	if s.auditLog != nil {
		s.auditLog.Record(e)
	}
}

// sendPush fires the wake-up notification for a freshly enqueued request.
// Best-effort by contract: every failure path returns false and the enqueue
// response carries pushSent so the hook can tell the user to open the watch.
func (s *RelayServer) sendPush(ctx context.Context, req *model.ApprovalRequest, pendingCount int) bool {
	n := &push.Notification{
		Body:         req.Title,
		Badge:        pendingCount,
		RequestID:    req.ID,
		Type:         req.Type.String(),
		ReqTitle:     req.Title,
		Description:  req.Description,
		FilePath:     req.FilePath,
		Command:      req.Command,
		PendingCount: pendingCount,
	}
	if pendingCount > 1 {
		n.Title = fmt.Sprintf("Agent: %d actions pending", pendingCount)
		n.Body = "Latest: " + req.Title
	} else {
		n.Title = "Agent: " + req.Type.String()
		n.Subtitle = truncate(req.Description, 50)
	}

	return s.dispatch(ctx, req.PairingID, n)
}

// sendQuestionPush fires the wake-up notification for a routed question.
func (s *RelayServer) sendQuestionPush(ctx context.Context, q *model.Question) bool {
	n := &push.Notification{
		Title:             "Agent: question",
		Body:              truncate(q.Question, 100),
		Subtitle:          "Recommend: " + truncate(q.RecommendedAnswer, 50),
		Badge:             1,
		Category:          push.CategoryQuestion,
		Type:              "question",
		QuestionID:        q.ID,
		Question:          q.Question,
		RecommendedAnswer: q.RecommendedAnswer,
	}
	return s.dispatch(ctx, q.PairingID, n)
}

// dispatch sends n to the pairing's device token and classifies failures:
// dead tokens are dropped, rate limits and everything else are logged and
// swallowed.
func (s *RelayServer) dispatch(ctx context.Context, pairingID string, n *push.Notification) bool {
	if s.dispatcher == nil {
		return false
	}
	rec, err := s.pairings.Get(ctx, pairingID)
	if err != nil || rec.DeviceToken == "" {
		return false
	}

	err = s.dispatcher.Send(ctx, rec.DeviceToken, n)
	switch {
	case err == nil:
		return true
	case errors.Is(err, push.ErrBadToken):
		slog.Info("dropping unregistered device token", "pairing_id", pairingID)
		if err := s.pairings.DropDeviceToken(ctx, pairingID); err != nil {
			slog.Warn("failed to drop device token", "pairing_id", pairingID, "error", err)
		}
	default:
		var rle *push.RateLimitedError
		if errors.As(err, &rle) {
			slog.Warn("push gateway rate limited", "retry_after", rle.RetryAfter)
		} else {
			slog.Warn("push send failed", "pairing_id", pairingID, "error", err)
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
