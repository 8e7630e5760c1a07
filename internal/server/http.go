package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/edgeoftrust/watchrelay/internal/pairing"
	"github.com/edgeoftrust/watchrelay/internal/question"
	"github.com/edgeoftrust/watchrelay/internal/queue"
	"github.com/edgeoftrust/watchrelay/internal/session"
)

// Error codes carried in the "code" field of error responses.
const (
	codeMissingField = "missing_field"
	codeInvalidField = "invalid_field"
	codeNotFound     = "not_found"
	codeUnauthorized = "unauthorized"
	codeConflict     = "conflict"
	codeRateLimited  = "rate_limited"
	codeInternal     = "internal_error"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
func (s *RelayServer) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /pair/initiate", s.handlePairInitiate)
	mux.HandleFunc("GET /pair/status/{watchId}", s.handlePairStatus)
	mux.HandleFunc("POST /pair/complete", s.handlePairComplete)
	mux.HandleFunc("POST /approval", s.handleEnqueueApproval)
	mux.HandleFunc("GET /approval-queue/{pairingId}", s.handleListPending)
	mux.HandleFunc("DELETE /approval-queue/{pairingId}", s.handleClearQueue)
	mux.HandleFunc("POST /approval/{requestId}", s.handleResolveApproval)
	mux.HandleFunc("GET /approval/{pairingId}/{requestId}", s.handlePollStatus)
	mux.HandleFunc("POST /question", s.handleCreateQuestion)
	mux.HandleFunc("GET /question/{questionId}", s.handlePollQuestion)
	mux.HandleFunc("POST /question/{questionId}", s.handleAnswerQuestion)
	mux.HandleFunc("POST /session-progress", s.handleSetProgress)
	mux.HandleFunc("GET /session-progress/{pairingId}", s.handleGetProgress)
	mux.HandleFunc("POST /session-interrupt", s.handleSetInterrupt)
	mux.HandleFunc("GET /session-interrupt/{pairingId}", s.handleGetInterrupt)
	mux.HandleFunc("GET /session-status/{pairingId}", s.handleSessionStatus)
	mux.HandleFunc("POST /session-end", s.handleSessionEnd)
	mux.HandleFunc("GET /health", s.handleHealth)
	return withMiddleware(mux)
}

// handleHealth handles GET /health.
func (s *RelayServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// withMiddleware wraps the mux with CORS headers, panic recovery, and
// request logging. CORS is wide open for browser-originated debugging; the
// relay carries no credentials a cross-origin page could steal.
func withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("handler panic",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
			}
		}()

		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// decodeJSON decodes the request body into dst. An empty body decodes to the
// zero value so optional-body endpoints don't force clients to send "{}".
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with an error code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

// writeDomainError maps domain sentinel errors to HTTP responses. Anything
// unrecognized becomes a generic 500 so internals never leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	var rle *pairing.RateLimitError
	switch {
	case errors.Is(err, pairing.ErrNotFound),
		errors.Is(err, queue.ErrNotFound),
		errors.Is(err, question.ErrNotFound),
		errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found or expired")
	case errors.Is(err, queue.ErrInvalidPairing),
		errors.Is(err, question.ErrInvalidPairing):
		writeError(w, http.StatusNotFound, codeNotFound, "no active pairing")
	case errors.Is(err, queue.ErrUnauthorized),
		errors.Is(err, question.ErrUnauthorized):
		writeError(w, http.StatusForbidden, codeUnauthorized, "pairing mismatch")
	case errors.As(err, &rle):
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "too many attempts",
			"code":       codeRateLimited,
			"retryAfter": int(rle.RetryAfter.Seconds()),
		})
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
