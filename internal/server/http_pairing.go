package server

import (
	"net/http"

	"github.com/edgeoftrust/watchrelay/internal/events"
)

// handlePairInitiate handles POST /pair/initiate. The device token is
// optional here; the watch usually attaches it on completion instead.
func (s *RelayServer) handlePairInitiate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeviceToken string `json:"deviceToken"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidField, "malformed JSON body")
		return
	}

	res, err := s.pairings.Initiate(r.Context(), body.DeviceToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.publish(r.Context(), events.TopicPairingInitiated, &events.PairingInitiated{
		WatchID:   res.WatchID,
		ExpiresIn: res.ExpiresIn,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"code":      res.Code,
		"watchId":   res.WatchID,
		"expiresIn": res.ExpiresIn,
	})
}

// handlePairStatus handles GET /pair/status/{watchId}. Polled by the CLI
// while the developer enters the code on the watch.
func (s *RelayServer) handlePairStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.pairings.Status(r.Context(), r.PathValue("watchId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := map[string]any{"paired": res.Paired}
	if res.Paired {
		out["pairingId"] = res.PairingID
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePairComplete handles POST /pair/complete.
func (s *RelayServer) handlePairComplete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code        string `json:"code"`
		DeviceToken string `json:"deviceToken"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidField, "malformed JSON body")
		return
	}
	if body.Code == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "code is required")
		return
	}

	pairingID, err := s.pairings.Complete(r.Context(), body.Code, body.DeviceToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	event := &events.PairingCompleted{PairingID: pairingID}
	if rec, err := s.pairings.Get(r.Context(), pairingID); err == nil {
		event.WatchID = rec.WatchID
	}
	s.publish(r.Context(), events.TopicPairingCompleted, event)

	writeJSON(w, http.StatusOK, map[string]string{"pairingId": pairingID})
}
