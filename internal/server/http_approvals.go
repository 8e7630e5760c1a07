package server

import (
	"errors"
	"net/http"

	"github.com/edgeoftrust/watchrelay/internal/audit"
	"github.com/edgeoftrust/watchrelay/internal/events"
	"github.com/edgeoftrust/watchrelay/internal/model"
	"github.com/edgeoftrust/watchrelay/internal/queue"
)

// handleEnqueueApproval handles POST /approval. Enqueues the request, then
// fires the best-effort push; a push failure never fails the enqueue.
func (s *RelayServer) handleEnqueueApproval(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PairingID   string `json:"pairingId"`
		ID          string `json:"id"`
		Type        string `json:"type"`
		Title       string `json:"title"`
		Description string `json:"description"`
		FilePath    string `json:"filePath"`
		Command     string `json:"command"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidField, "malformed JSON body")
		return
	}
	if body.PairingID == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "pairingId is required")
		return
	}
	if body.Type == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "type is required")
		return
	}
	if body.Title == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "title is required")
		return
	}
	reqType := model.ApprovalType(body.Type)
	if !reqType.IsValid() {
		writeError(w, http.StatusBadRequest, codeInvalidField, "unknown approval type")
		return
	}

	req := &model.ApprovalRequest{
		ID:          body.ID,
		PairingID:   body.PairingID,
		Type:        reqType,
		Title:       body.Title,
		Description: body.Description,
		FilePath:    body.FilePath,
		Command:     body.Command,
	}
	requestID, err := s.queue.Enqueue(r.Context(), req)
	if errors.Is(err, queue.ErrInvalidPairing) {
		writeError(w, http.StatusNotFound, codeNotFound, "no active pairing")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	pending := s.queue.PendingCount(r.Context(), req.PairingID)
	pushSent := s.sendPush(r.Context(), req, pending)

	s.record(audit.Entry{
		Event:     "enqueued",
		PairingID: req.PairingID,
		RequestID: requestID,
		Type:      req.Type.String(),
		Title:     req.Title,
	})
	s.publish(r.Context(), events.TopicApprovalCreated, &events.ApprovalCreated{
		Request:  req,
		Pending:  pending,
		PushSent: pushSent,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"requestId": requestID,
		"pushSent":  pushSent,
	})
}

// handleListPending handles GET /approval-queue/{pairingId}. Pending entries
// only, in enqueue order.
func (s *RelayServer) handleListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.queue.ListPending(r.Context(), r.PathValue("pairingId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if pending == nil {
		pending = []*model.ApprovalRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": pending})
}

// handleClearQueue handles DELETE /approval-queue/{pairingId}.
func (s *RelayServer) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	pairingID := r.PathValue("pairingId")
	if err := s.queue.Clear(r.Context(), pairingID); err != nil {
		writeDomainError(w, err)
		return
	}

	s.record(audit.Entry{Event: "cleared", PairingID: pairingID})
	s.publish(r.Context(), events.TopicQueueCleared, &events.QueueCleared{PairingID: pairingID})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleResolveApproval handles POST /approval/{requestId}. The first
// decision wins: an identical repeat is a no-op success, a disagreeing
// repeat gets 409 with the standing status.
func (s *RelayServer) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestId")

	var body struct {
		PairingID string `json:"pairingId"`
		Approved  *bool  `json:"approved"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidField, "malformed JSON body")
		return
	}
	if body.PairingID == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "pairingId is required")
		return
	}
	if body.Approved == nil {
		writeError(w, http.StatusBadRequest, codeMissingField, "approved is required")
		return
	}

	status, err := s.queue.Resolve(r.Context(), requestID, body.PairingID, *body.Approved)
	if errors.Is(err, queue.ErrConflict) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "request already resolved with a different decision",
			"code":   codeConflict,
			"status": status,
		})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.record(audit.Entry{
		Event:     "resolved",
		PairingID: body.PairingID,
		RequestID: requestID,
		Status:    string(status),
	})
	s.publish(r.Context(), events.TopicApprovalResolved, &events.ApprovalResolved{
		PairingID: body.PairingID,
		RequestID: requestID,
		Status:    status,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  status,
	})
}

// handlePollStatus handles GET /approval/{pairingId}/{requestId}. The hook
// polls this at sub-second frequency; it is a single key read. A request
// whose queue entry has TTL'd out reports status "expired" rather than 404
// so the hook can tell expiry apart from a relay outage.
func (s *RelayServer) handlePollStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestId")

	req, err := s.queue.Status(r.Context(), r.PathValue("pairingId"), requestID)
	if errors.Is(err, queue.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     requestID,
			"status": model.StatusExpired,
		})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     req.ID,
		"status": req.Status,
		"type":   req.Type,
		"title":  req.Title,
	})
}
