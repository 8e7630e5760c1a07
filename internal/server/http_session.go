package server

import (
	"net/http"

	"github.com/edgeoftrust/watchrelay/internal/audit"
	"github.com/edgeoftrust/watchrelay/internal/events"
	"github.com/edgeoftrust/watchrelay/internal/model"
)

// handleSetProgress handles POST /session-progress. Last write wins; the
// hook overwrites the record wholesale on every update.
func (s *RelayServer) handleSetProgress(w http.ResponseWriter, r *http.Request) {
	var progress model.SessionProgress
	if err := decodeJSON(r, &progress); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidField, "malformed JSON body")
		return
	}
	if progress.PairingID == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "pairingId is required")
		return
	}

	if err := s.sessions.SetProgress(r.Context(), &progress); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleGetProgress handles GET /session-progress/{pairingId}. The watch
// treats 404 as "no active session".
func (s *RelayServer) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.sessions.GetProgress(r.Context(), r.PathValue("pairingId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleSetInterrupt handles POST /session-interrupt.
func (s *RelayServer) handleSetInterrupt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PairingID string `json:"pairingId"`
		Action    string `json:"action"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidField, "malformed JSON body")
		return
	}
	if body.PairingID == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "pairingId is required")
		return
	}
	if body.Action == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "action is required")
		return
	}
	action := model.InterruptAction(body.Action)
	if !action.IsValid() {
		writeError(w, http.StatusBadRequest, codeInvalidField, "unknown interrupt action")
		return
	}

	rec, err := s.sessions.SetInterrupt(r.Context(), body.PairingID, action)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.publish(r.Context(), events.TopicSessionInterrupt, &events.SessionInterrupt{
		PairingID:   body.PairingID,
		Action:      action,
		Interrupted: rec.Interrupted,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"interrupted": rec.Interrupted,
	})
}

// handleGetInterrupt handles GET /session-interrupt/{pairingId}. The hook
// checks this between tool invocations; a missing record reads as not
// interrupted.
func (s *RelayServer) handleGetInterrupt(w http.ResponseWriter, r *http.Request) {
	rec, err := s.sessions.GetInterrupt(r.Context(), r.PathValue("pairingId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"interrupted": rec.Interrupted})
}

// handleSessionStatus handles GET /session-status/{pairingId}. The hook
// consults it before enqueueing so work for an ended session falls back to
// the terminal instead of queueing approvals nobody will answer.
func (s *RelayServer) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	active, err := s.sessions.Active(r.Context(), r.PathValue("pairingId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sessionActive": active})
}

// handleSessionEnd handles POST /session-end. Clears the approval queue and
// the session records so a late approval cannot resurrect a finished
// session.
func (s *RelayServer) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PairingID string `json:"pairingId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidField, "malformed JSON body")
		return
	}
	if body.PairingID == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "pairingId is required")
		return
	}

	if err := s.queue.Clear(r.Context(), body.PairingID); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.sessions.End(r.Context(), body.PairingID); err != nil {
		writeDomainError(w, err)
		return
	}

	s.record(audit.Entry{Event: "cleared", PairingID: body.PairingID})
	s.publish(r.Context(), events.TopicSessionEnded, &events.SessionEnded{PairingID: body.PairingID})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
