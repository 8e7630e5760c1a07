package events

import (
	"context"

	"github.com/edgeoftrust/watchrelay/internal/model"
)

// Event topic constants
const (
	TopicPairingInitiated = "relay.pairing.initiated"
	TopicPairingCompleted = "relay.pairing.completed"

	TopicApprovalCreated  = "relay.approval.created"
	TopicApprovalResolved = "relay.approval.resolved"
	TopicQueueCleared     = "relay.approval.cleared"

	TopicQuestionCreated  = "relay.question.created"
	TopicQuestionAnswered = "relay.question.answered"

	TopicSessionInterrupt = "relay.session.interrupt"
	TopicSessionEnded     = "relay.session.ended"
)

// Event types

type PairingInitiated struct {
	WatchID   string `json:"watchId"`
	ExpiresIn int    `json:"expiresIn"`
}

type PairingCompleted struct {
	PairingID string `json:"pairingId"`
	WatchID   string `json:"watchId"`
}

type ApprovalCreated struct {
	Request  *model.ApprovalRequest `json:"request"`
	Pending  int                    `json:"pending"`
	PushSent bool                   `json:"pushSent"`
}

type ApprovalResolved struct {
	PairingID string               `json:"pairingId"`
	RequestID string               `json:"requestId"`
	Status    model.ApprovalStatus `json:"status"`
}

type QueueCleared struct {
	PairingID string `json:"pairingId"`
}

type QuestionCreated struct {
	Question *model.Question `json:"question"`
	PushSent bool            `json:"pushSent"`
}

type QuestionAnswered struct {
	PairingID  string               `json:"pairingId"`
	QuestionID string               `json:"questionId"`
	Status     model.QuestionStatus `json:"status"`
}

type SessionInterrupt struct {
	PairingID   string                `json:"pairingId"`
	Action      model.InterruptAction `json:"action"`
	Interrupted bool                  `json:"interrupted"`
}

type SessionEnded struct {
	PairingID string `json:"pairingId"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives relay events, e.g. for the `watch` command tailing a
// live session. Call the returned cancel function to unsubscribe and close
// the channel.
type Subscriber interface {
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

// NoopPublisher discards all events. Used when RELAY_NATS_URL is unset.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error { return nil }
