package server

import (
	"errors"
	"net/http"

	"github.com/edgeoftrust/watchrelay/internal/audit"
	"github.com/edgeoftrust/watchrelay/internal/events"
	"github.com/edgeoftrust/watchrelay/internal/model"
	"github.com/edgeoftrust/watchrelay/internal/question"
)

// handleCreateQuestion handles POST /question. Stores the question, then
// fires the best-effort push; a push failure never fails the create.
func (s *RelayServer) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PairingID         string `json:"pairingId"`
		QuestionID        string `json:"questionId"`
		Question          string `json:"question"`
		RecommendedAnswer string `json:"recommendedAnswer"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidField, "malformed JSON body")
		return
	}
	if body.PairingID == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "pairingId is required")
		return
	}
	if body.Question == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "question is required")
		return
	}
	if body.RecommendedAnswer == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "recommendedAnswer is required")
		return
	}

	q := &model.Question{
		ID:                body.QuestionID,
		PairingID:         body.PairingID,
		Question:          body.Question,
		RecommendedAnswer: body.RecommendedAnswer,
	}
	questionID, err := s.questions.Create(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	pushSent := s.sendQuestionPush(r.Context(), q)

	s.record(audit.Entry{
		Event:     "question_created",
		PairingID: q.PairingID,
		RequestID: questionID,
		Type:      "question",
		Title:     q.Question,
	})
	s.publish(r.Context(), events.TopicQuestionCreated, &events.QuestionCreated{
		Question: q,
		PushSent: pushSent,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"questionId": questionID,
		"pushSent":   pushSent,
	})
}

// handlePollQuestion handles GET /question/{questionId}?pairingId=. An ended
// session reports status "session_ended" so the hook hands the question back
// to the terminal instead of waiting out its timeout.
func (s *RelayServer) handlePollQuestion(w http.ResponseWriter, r *http.Request) {
	questionID := r.PathValue("questionId")
	pairingID := r.URL.Query().Get("pairingId")
	if pairingID == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "pairingId is required")
		return
	}

	q, err := s.questions.Get(r.Context(), questionID, pairingID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if active, err := s.sessions.Active(r.Context(), pairingID); err == nil && !active {
		writeJSON(w, http.StatusOK, map[string]any{
			"questionId": questionID,
			"status":     model.QuestionSessionEnded,
		})
		return
	}

	resp := map[string]any{
		"questionId": q.ID,
		"status":     q.Status,
	}
	if q.Answer != "" {
		resp["answer"] = q.Answer
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAnswerQuestion handles POST /question/{questionId}. The first
// decision wins: an identical repeat is a no-op success, a disagreeing
// repeat gets 409 with the standing status.
func (s *RelayServer) handleAnswerQuestion(w http.ResponseWriter, r *http.Request) {
	questionID := r.PathValue("questionId")

	var body struct {
		PairingID string `json:"pairingId"`
		Accept    *bool  `json:"accept"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidField, "malformed JSON body")
		return
	}
	if body.PairingID == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "pairingId is required")
		return
	}
	if body.Accept == nil {
		writeError(w, http.StatusBadRequest, codeMissingField, "accept is required")
		return
	}

	q, err := s.questions.Answer(r.Context(), questionID, body.PairingID, *body.Accept)
	if errors.Is(err, question.ErrConflict) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "question already answered with a different decision",
			"code":   codeConflict,
			"status": q.Status,
		})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.record(audit.Entry{
		Event:     "question_answered",
		PairingID: body.PairingID,
		RequestID: questionID,
		Type:      "question",
		Status:    string(q.Status),
	})
	s.publish(r.Context(), events.TopicQuestionAnswered, &events.QuestionAnswered{
		PairingID:  body.PairingID,
		QuestionID: questionID,
		Status:     q.Status,
	})

	resp := map[string]any{
		"success": true,
		"status":  q.Status,
	}
	if q.Answer != "" {
		resp["answer"] = q.Answer
	}
	writeJSON(w, http.StatusOK, resp)
}
