package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgeoftrust/watchrelay/internal/audit"
	"github.com/edgeoftrust/watchrelay/internal/events"
	"github.com/edgeoftrust/watchrelay/internal/kv"
	"github.com/edgeoftrust/watchrelay/internal/model"
	"github.com/edgeoftrust/watchrelay/internal/pairing"
	"github.com/edgeoftrust/watchrelay/internal/push"
	"github.com/edgeoftrust/watchrelay/internal/question"
	"github.com/edgeoftrust/watchrelay/internal/queue"
	"github.com/edgeoftrust/watchrelay/internal/session"
)

// fakeDispatcher records sends and returns a configurable error.
type fakeDispatcher struct {
	sent    []*push.Notification
	tokens  []string
	sendErr error
}

func (d *fakeDispatcher) Send(_ context.Context, token string, n *push.Notification) error {
	if d.sendErr != nil {
		return d.sendErr
	}
	d.tokens = append(d.tokens, token)
	d.sent = append(d.sent, n)
	return nil
}

func newTestServer(t *testing.T, dispatcher push.Dispatcher) (*RelayServer, http.Handler) {
	t.Helper()
	store := kv.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	pairings := pairing.NewManager(store)
	q := queue.New(store, pairings)
	questions := question.NewStore(store, pairings)
	sessions := session.NewTracker(store)
	s := NewRelayServer(pairings, q, questions, sessions, dispatcher, &events.NoopPublisher{}, audit.NewLog())
	return s, s.NewHTTPHandler()
}

// doJSON performs an HTTP request with an optional JSON body and returns the recorder.
func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// requireStatus asserts the recorder has the expected HTTP status code.
func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("expected status %d, got %d; body: %s", code, rec.Code, rec.Body.String())
	}
}

// decodeBody decodes the recorder's response body into v.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// pairViaHTTP runs the initiate/complete exchange and returns the pairing ID.
func pairViaHTTP(t *testing.T, h http.Handler, deviceToken string) string {
	t.Helper()
	rec := doJSON(t, h, "POST", "/pair/initiate", nil)
	requireStatus(t, rec, 200)
	var init struct {
		Code    string `json:"code"`
		WatchID string `json:"watchId"`
	}
	decodeBody(t, rec, &init)

	rec = doJSON(t, h, "POST", "/pair/complete", map[string]string{
		"code":        init.Code,
		"deviceToken": deviceToken,
	})
	requireStatus(t, rec, 200)
	var done struct {
		PairingID string `json:"pairingId"`
	}
	decodeBody(t, rec, &done)
	if done.PairingID == "" {
		t.Fatal("expected a pairing id")
	}
	return done.PairingID
}

func enqueueOne(t *testing.T, h http.Handler, pairingID, title string) string {
	t.Helper()
	rec := doJSON(t, h, "POST", "/approval", map[string]any{
		"pairingId": pairingID,
		"type":      "bash",
		"title":     title,
	})
	requireStatus(t, rec, 200)
	var out struct {
		RequestID string `json:"requestId"`
	}
	decodeBody(t, rec, &out)
	return out.RequestID
}

func TestHandleHealth(t *testing.T) {
	_, h := newTestServer(t, nil)
	rec := doJSON(t, h, "GET", "/health", nil)
	requireStatus(t, rec, 200)
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %q", body["status"])
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"]); err != nil {
		t.Fatalf("timestamp not RFC3339: %q", body["timestamp"])
	}
}

func TestHandleHTTPErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		method   string
		path     string
		body     any
		code     int
		wantCode string
	}{
		{"PairComplete/MissingCode", "POST", "/pair/complete", map[string]any{"deviceToken": "t"}, 400, "missing_field"},
		{"PairComplete/UnknownCode", "POST", "/pair/complete", map[string]any{"code": "000000"}, 404, "not_found"},
		{"PairStatus/Unknown", "GET", "/pair/status/watch-missing", nil, 404, "not_found"},
		{"Enqueue/MissingPairingID", "POST", "/approval", map[string]any{"type": "bash", "title": "x"}, 400, "missing_field"},
		{"Enqueue/MissingType", "POST", "/approval", map[string]any{"pairingId": "p", "title": "x"}, 400, "missing_field"},
		{"Enqueue/MissingTitle", "POST", "/approval", map[string]any{"pairingId": "p", "type": "bash"}, 400, "missing_field"},
		{"Enqueue/BadType", "POST", "/approval", map[string]any{"pairingId": "p", "type": "jetpack", "title": "x"}, 400, "invalid_field"},
		{"Enqueue/NoPairing", "POST", "/approval", map[string]any{"pairingId": "ghost", "type": "bash", "title": "x"}, 404, "not_found"},
		{"Resolve/MissingPairingID", "POST", "/approval/req-x", map[string]any{"approved": true}, 400, "missing_field"},
		{"Resolve/MissingApproved", "POST", "/approval/req-x", map[string]any{"pairingId": "p"}, 400, "missing_field"},
		{"Resolve/Unknown", "POST", "/approval/req-x", map[string]any{"pairingId": "p", "approved": true}, 404, "not_found"},
		{"Progress/MissingPairingID", "POST", "/session-progress", map[string]any{"currentTask": "x"}, 400, "missing_field"},
		{"Progress/NotFound", "GET", "/session-progress/ghost", nil, 404, "not_found"},
		{"Interrupt/BadAction", "POST", "/session-interrupt", map[string]any{"pairingId": "p", "action": "explode"}, 400, "invalid_field"},
		{"Interrupt/MissingAction", "POST", "/session-interrupt", map[string]any{"pairingId": "p"}, 400, "missing_field"},
		{"SessionEnd/MissingPairingID", "POST", "/session-end", map[string]any{}, 400, "missing_field"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, h := newTestServer(t, nil)
			rec := doJSON(t, h, tc.method, tc.path, tc.body)
			requireStatus(t, rec, tc.code)
			var body map[string]any
			decodeBody(t, rec, &body)
			if body["code"] != tc.wantCode {
				t.Fatalf("expected code=%q, got %v", tc.wantCode, body["code"])
			}
		})
	}
}

func TestPairingLifecycle(t *testing.T) {
	_, h := newTestServer(t, nil)

	rec := doJSON(t, h, "POST", "/pair/initiate", nil)
	requireStatus(t, rec, 200)
	var init struct {
		Code      string `json:"code"`
		WatchID   string `json:"watchId"`
		ExpiresIn int    `json:"expiresIn"`
	}
	decodeBody(t, rec, &init)
	if len(init.Code) != 6 || init.WatchID == "" || init.ExpiresIn != 600 {
		t.Fatalf("unexpected initiate response: %+v", init)
	}

	// Not paired yet.
	rec = doJSON(t, h, "GET", "/pair/status/"+init.WatchID, nil)
	requireStatus(t, rec, 200)
	var status struct {
		Paired    bool   `json:"paired"`
		PairingID string `json:"pairingId"`
	}
	decodeBody(t, rec, &status)
	if status.Paired {
		t.Fatal("paired before complete")
	}

	rec = doJSON(t, h, "POST", "/pair/complete", map[string]string{"code": init.Code, "deviceToken": "tok1"})
	requireStatus(t, rec, 200)

	rec = doJSON(t, h, "GET", "/pair/status/"+init.WatchID, nil)
	requireStatus(t, rec, 200)
	decodeBody(t, rec, &status)
	if !status.Paired || status.PairingID == "" {
		t.Fatalf("expected paired with id, got %+v", status)
	}

	// Single-use: the consumed code is gone.
	rec = doJSON(t, h, "POST", "/pair/complete", map[string]string{"code": init.Code})
	requireStatus(t, rec, 404)
}

func TestApprovalLifecycle(t *testing.T) {
	_, h := newTestServer(t, nil)
	pairingID := pairViaHTTP(t, h, "tok1")

	r1 := enqueueOne(t, h, pairingID, "rm -rf /tmp/x")
	r2 := enqueueOne(t, h, pairingID, "edit main.go")

	// FIFO pending list.
	rec := doJSON(t, h, "GET", "/approval-queue/"+pairingID, nil)
	requireStatus(t, rec, 200)
	var list struct {
		Requests []model.ApprovalRequest `json:"requests"`
	}
	decodeBody(t, rec, &list)
	if len(list.Requests) != 2 || list.Requests[0].ID != r1 || list.Requests[1].ID != r2 {
		t.Fatalf("unexpected pending list: %+v", list.Requests)
	}

	// Approve the first.
	rec = doJSON(t, h, "POST", "/approval/"+r1, map[string]any{"pairingId": pairingID, "approved": true})
	requireStatus(t, rec, 200)
	var resolved struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	decodeBody(t, rec, &resolved)
	if !resolved.Success || resolved.Status != "approved" {
		t.Fatalf("unexpected resolve response: %+v", resolved)
	}

	// Resolved entries drop out of pending.
	rec = doJSON(t, h, "GET", "/approval-queue/"+pairingID, nil)
	decodeBody(t, rec, &list)
	if len(list.Requests) != 1 || list.Requests[0].ID != r2 {
		t.Fatalf("expected only %s pending, got %+v", r2, list.Requests)
	}

	// Poll sees the terminal status.
	rec = doJSON(t, h, "GET", "/approval/"+pairingID+"/"+r1, nil)
	requireStatus(t, rec, 200)
	var poll struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Title  string `json:"title"`
	}
	decodeBody(t, rec, &poll)
	if poll.ID != r1 || poll.Status != "approved" || poll.Title != "rm -rf /tmp/x" {
		t.Fatalf("unexpected poll response: %+v", poll)
	}
}

// Every wire type is accepted, including ones the hook never emits itself
// (file_delete comes from other clients).
func TestEnqueueAcceptsAllWireTypes(t *testing.T) {
	_, h := newTestServer(t, nil)
	pairingID := pairViaHTTP(t, h, "tok1")

	for _, typ := range []string{"file_edit", "file_create", "file_delete", "bash", "tool_use"} {
		rec := doJSON(t, h, "POST", "/approval", map[string]any{
			"pairingId": pairingID,
			"type":      typ,
			"title":     "op: " + typ,
		})
		if rec.Code != 200 {
			t.Errorf("type %q rejected with %d: %s", typ, rec.Code, rec.Body.String())
		}
	}
}

func TestResolveIdempotentAndConflict(t *testing.T) {
	_, h := newTestServer(t, nil)
	pairingID := pairViaHTTP(t, h, "tok1")
	r1 := enqueueOne(t, h, pairingID, "do the thing")

	rec := doJSON(t, h, "POST", "/approval/"+r1, map[string]any{"pairingId": pairingID, "approved": false})
	requireStatus(t, rec, 200)

	// Identical repeat is a no-op success.
	rec = doJSON(t, h, "POST", "/approval/"+r1, map[string]any{"pairingId": pairingID, "approved": false})
	requireStatus(t, rec, 200)

	// Disagreeing repeat conflicts; the first decision stands.
	rec = doJSON(t, h, "POST", "/approval/"+r1, map[string]any{"pairingId": pairingID, "approved": true})
	requireStatus(t, rec, 409)
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["code"] != "conflict" || body["status"] != "rejected" {
		t.Fatalf("unexpected conflict body: %v", body)
	}
}

func TestResolveWrongPairing(t *testing.T) {
	_, h := newTestServer(t, nil)
	pairingID := pairViaHTTP(t, h, "tok1")
	r1 := enqueueOne(t, h, pairingID, "do the thing")

	rec := doJSON(t, h, "POST", "/approval/"+r1, map[string]any{"pairingId": "wrong-pairing", "approved": false})
	requireStatus(t, rec, 403)

	// Status unchanged.
	rec = doJSON(t, h, "GET", "/approval/"+pairingID+"/"+r1, nil)
	var poll struct {
		Status string `json:"status"`
	}
	decodeBody(t, rec, &poll)
	if poll.Status != "pending" {
		t.Fatalf("expected still pending, got %q", poll.Status)
	}
}

func TestPollStatusExpired(t *testing.T) {
	_, h := newTestServer(t, nil)
	pairingID := pairViaHTTP(t, h, "tok1")

	rec := doJSON(t, h, "GET", "/approval/"+pairingID+"/req-gone", nil)
	requireStatus(t, rec, 200)
	var poll struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, rec, &poll)
	if poll.ID != "req-gone" || poll.Status != "expired" {
		t.Fatalf("expected expired, got %+v", poll)
	}
}

func TestClearQueue(t *testing.T) {
	_, h := newTestServer(t, nil)
	pairingID := pairViaHTTP(t, h, "tok1")
	enqueueOne(t, h, pairingID, "one")
	enqueueOne(t, h, pairingID, "two")

	rec := doJSON(t, h, "DELETE", "/approval-queue/"+pairingID, nil)
	requireStatus(t, rec, 200)

	rec = doJSON(t, h, "GET", "/approval-queue/"+pairingID, nil)
	var list struct {
		Requests []model.ApprovalRequest `json:"requests"`
	}
	decodeBody(t, rec, &list)
	if len(list.Requests) != 0 {
		t.Fatalf("expected empty queue, got %+v", list.Requests)
	}
}

func TestSessionProgressRoundTrip(t *testing.T) {
	_, h := newTestServer(t, nil)
	pairingID := pairViaHTTP(t, h, "tok1")

	rec := doJSON(t, h, "POST", "/session-progress", map[string]any{
		"pairingId":       pairingID,
		"currentTask":     "refactor parser",
		"percentComplete": 40.0,
		"completedCount":  2,
		"totalCount":      5,
		"tasks": []map[string]string{
			{"content": "refactor parser", "status": "in_progress"},
		},
	})
	requireStatus(t, rec, 200)

	rec = doJSON(t, h, "GET", "/session-progress/"+pairingID, nil)
	requireStatus(t, rec, 200)
	var progress model.SessionProgress
	decodeBody(t, rec, &progress)
	if progress.CurrentTask != "refactor parser" || progress.CompletedCount != 2 || len(progress.Tasks) != 1 {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	if progress.UpdatedAt.IsZero() {
		t.Fatal("expected updatedAt to be stamped")
	}
}

func TestSessionInterrupt(t *testing.T) {
	_, h := newTestServer(t, nil)
	pairingID := pairViaHTTP(t, h, "tok1")

	rec := doJSON(t, h, "POST", "/session-interrupt", map[string]string{"pairingId": pairingID, "action": "stop"})
	requireStatus(t, rec, 200)
	var out struct {
		Interrupted bool `json:"interrupted"`
	}
	decodeBody(t, rec, &out)
	if !out.Interrupted {
		t.Fatal("expected interrupted after stop")
	}

	rec = doJSON(t, h, "GET", "/session-interrupt/"+pairingID, nil)
	decodeBody(t, rec, &out)
	if !out.Interrupted {
		t.Fatal("expected interrupted flag set")
	}

	rec = doJSON(t, h, "POST", "/session-interrupt", map[string]string{"pairingId": pairingID, "action": "resume"})
	requireStatus(t, rec, 200)
	rec = doJSON(t, h, "GET", "/session-interrupt/"+pairingID, nil)
	decodeBody(t, rec, &out)
	if out.Interrupted {
		t.Fatal("expected interrupted cleared after resume")
	}
}

func TestSessionEnd(t *testing.T) {
	s, h := newTestServer(t, nil)
	pairingID := pairViaHTTP(t, h, "tok1")
	enqueueOne(t, h, pairingID, "pending work")
	doJSON(t, h, "POST", "/session-progress", map[string]any{"pairingId": pairingID, "currentTask": "x"})

	rec := doJSON(t, h, "GET", "/session-status/"+pairingID, nil)
	var status struct {
		SessionActive bool `json:"sessionActive"`
	}
	decodeBody(t, rec, &status)
	if !status.SessionActive {
		t.Fatal("expected session active")
	}

	rec = doJSON(t, h, "POST", "/session-end", map[string]string{"pairingId": pairingID})
	requireStatus(t, rec, 200)

	// Queue cleared, progress gone, session inactive.
	rec = doJSON(t, h, "GET", "/approval-queue/"+pairingID, nil)
	var list struct {
		Requests []model.ApprovalRequest `json:"requests"`
	}
	decodeBody(t, rec, &list)
	if len(list.Requests) != 0 {
		t.Fatalf("expected empty queue after session end, got %+v", list.Requests)
	}
	rec = doJSON(t, h, "GET", "/session-progress/"+pairingID, nil)
	requireStatus(t, rec, 404)
	rec = doJSON(t, h, "GET", "/session-status/"+pairingID, nil)
	decodeBody(t, rec, &status)
	if status.SessionActive {
		t.Fatal("expected session inactive after end")
	}

	// Audit trail recorded the lifecycle.
	entries := s.auditLog.Snapshot()
	if len(entries) == 0 {
		t.Fatal("expected audit entries")
	}
	last := entries[len(entries)-1]
	if last.Event != "cleared" || last.PairingID != pairingID {
		t.Fatalf("unexpected last audit entry: %+v", last)
	}
}

func TestEnqueueSendsPush(t *testing.T) {
	d := &fakeDispatcher{}
	_, h := newTestServer(t, d)
	pairingID := pairViaHTTP(t, h, "tok-watch")

	rec := doJSON(t, h, "POST", "/approval", map[string]any{
		"pairingId":   pairingID,
		"type":        "file_edit",
		"title":       "edit config.yaml",
		"description": "update the retry limits",
		"filePath":    "config.yaml",
	})
	requireStatus(t, rec, 200)
	var out struct {
		RequestID string `json:"requestId"`
		PushSent  bool   `json:"pushSent"`
	}
	decodeBody(t, rec, &out)
	if !out.PushSent {
		t.Fatal("expected pushSent with a registered token")
	}
	if len(d.sent) != 1 || d.tokens[0] != "tok-watch" {
		t.Fatalf("expected one push to tok-watch, got %+v", d.tokens)
	}
	n := d.sent[0]
	if n.RequestID != out.RequestID || n.Type != "file_edit" || n.Badge != 1 {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func TestEnqueuePushFailureIsNonFatal(t *testing.T) {
	d := &fakeDispatcher{sendErr: errors.New("gateway down")}
	_, h := newTestServer(t, d)
	pairingID := pairViaHTTP(t, h, "tok-watch")

	rec := doJSON(t, h, "POST", "/approval", map[string]any{
		"pairingId": pairingID,
		"type":      "bash",
		"title":     "ls",
	})
	requireStatus(t, rec, 200)
	var out struct {
		RequestID string `json:"requestId"`
		PushSent  bool   `json:"pushSent"`
	}
	decodeBody(t, rec, &out)
	if out.PushSent {
		t.Fatal("expected pushSent=false on gateway failure")
	}
	if out.RequestID == "" {
		t.Fatal("enqueue must succeed despite push failure")
	}
}

func TestBadTokenDropsDeviceToken(t *testing.T) {
	d := &fakeDispatcher{sendErr: push.ErrBadToken}
	s, h := newTestServer(t, d)
	pairingID := pairViaHTTP(t, h, "tok-dead")

	enqueueOne(t, h, pairingID, "first")

	rec, err := s.pairings.Get(context.Background(), pairingID)
	if err != nil {
		t.Fatalf("get pairing: %v", err)
	}
	if rec.DeviceToken != "" {
		t.Fatalf("expected device token dropped, got %q", rec.DeviceToken)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t, nil)
	req := httptest.NewRequest("OPTIONS", "/approval", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	requireStatus(t, rec, 204)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS allow-origin header")
	}
}

func TestMalformedJSONBody(t *testing.T) {
	_, h := newTestServer(t, nil)
	req := httptest.NewRequest("POST", "/approval", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	requireStatus(t, rec, 400)
}
