package model

import "time"

// QuestionStatus is the lifecycle state of a question routed to the watch.
type QuestionStatus string

const (
	QuestionPending     QuestionStatus = "pending"
	QuestionAccepted    QuestionStatus = "accepted"
	QuestionHandleOnMac QuestionStatus = "handle_on_mac"
	// QuestionSessionEnded is never stored; it is reported when the watch
	// session is no longer active, so the hook hands the question back to
	// the terminal.
	QuestionSessionEnded QuestionStatus = "session_ended"
)

// Terminal reports whether the watch has taken its decision.
func (s QuestionStatus) Terminal() bool {
	return s == QuestionAccepted || s == QuestionHandleOnMac
}

// Question is an agent question routed to the watch with a recommended
// answer. The watch takes a binary decision only: accept the recommendation
// or hand the question back to the terminal.
type Question struct {
	ID                string         `json:"questionId"`
	PairingID         string         `json:"pairingId"`
	Question          string         `json:"question"`
	RecommendedAnswer string         `json:"recommendedAnswer"`
	Status            QuestionStatus `json:"status"`
	Answer            string         `json:"answer,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}
