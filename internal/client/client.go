// Package client provides a typed HTTP client for the relay API, used by the
// CLI hooks and the pairing flow.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edgeoftrust/watchrelay/internal/model"
)

// Client talks to a relay over HTTP/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client targeting the given base URL
// (e.g. "http://localhost:8787"). The default timeout is short because the
// hook's poll loop calls the relay once a second and must not stack up.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError represents an error response from the relay.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter int // seconds, set on rate-limit responses
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay: %s (%d %s)", e.Message, e.StatusCode, e.Code)
}

// NotFound reports whether the error is a 404.
func (e *APIError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// InitiateResult is the response to Initiate.
type InitiateResult struct {
	Code      string `json:"code"`
	WatchID   string `json:"watchId"`
	ExpiresIn int    `json:"expiresIn"`
}

// PairStatus is the response to Status.
type PairStatus struct {
	Paired    bool   `json:"paired"`
	PairingID string `json:"pairingId"`
}

// ApprovalSubmission is the body for Enqueue. ID is optional; callers that
// poll for the result supply their own so a lost response is recoverable.
type ApprovalSubmission struct {
	PairingID   string `json:"pairingId"`
	ID          string `json:"id,omitempty"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	FilePath    string `json:"filePath,omitempty"`
	Command     string `json:"command,omitempty"`
}

// EnqueueResult is the response to Enqueue.
type EnqueueResult struct {
	RequestID string `json:"requestId"`
	PushSent  bool   `json:"pushSent"`
}

// RequestStatus is the response to PollStatus.
type RequestStatus struct {
	ID     string               `json:"id"`
	Status model.ApprovalStatus `json:"status"`
	Type   model.ApprovalType   `json:"type"`
	Title  string               `json:"title"`
}

// Initiate starts a pairing and returns the code to show the developer.
func (c *Client) Initiate(ctx context.Context, deviceToken string) (*InitiateResult, error) {
	body := map[string]string{}
	if deviceToken != "" {
		body["deviceToken"] = deviceToken
	}
	var res InitiateResult
	if err := c.doJSON(ctx, http.MethodPost, "/pair/initiate", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Status polls whether the pairing for watchID has completed.
func (c *Client) Status(ctx context.Context, watchID string) (*PairStatus, error) {
	var res PairStatus
	if err := c.doJSON(ctx, http.MethodGet, "/pair/status/"+url.PathEscape(watchID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Complete consumes a pairing code and returns the minted pairing ID.
func (c *Client) Complete(ctx context.Context, code, deviceToken string) (string, error) {
	body := map[string]string{"code": code}
	if deviceToken != "" {
		body["deviceToken"] = deviceToken
	}
	var res struct {
		PairingID string `json:"pairingId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/pair/complete", body, &res); err != nil {
		return "", err
	}
	return res.PairingID, nil
}

// Enqueue submits an approval request.
func (c *Client) Enqueue(ctx context.Context, sub *ApprovalSubmission) (*EnqueueResult, error) {
	var res EnqueueResult
	if err := c.doJSON(ctx, http.MethodPost, "/approval", sub, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListPending returns the pending requests for a pairing in FIFO order.
func (c *Client) ListPending(ctx context.Context, pairingID string) ([]*model.ApprovalRequest, error) {
	var res struct {
		Requests []*model.ApprovalRequest `json:"requests"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/approval-queue/"+url.PathEscape(pairingID), nil, &res); err != nil {
		return nil, err
	}
	return res.Requests, nil
}

// ClearQueue deletes all queued requests for a pairing.
func (c *Client) ClearQueue(ctx context.Context, pairingID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/approval-queue/"+url.PathEscape(pairingID), nil, nil)
}

// Resolve records an approve/reject decision for a request.
func (c *Client) Resolve(ctx context.Context, requestID, pairingID string, approved bool) (model.ApprovalStatus, error) {
	body := map[string]any{"pairingId": pairingID, "approved": approved}
	var res struct {
		Status model.ApprovalStatus `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/approval/"+url.PathEscape(requestID), body, &res); err != nil {
		return "", err
	}
	return res.Status, nil
}

// PollStatus reads the current status of one request. Called once a second
// by the hook's wait loop.
func (c *Client) PollStatus(ctx context.Context, pairingID, requestID string) (*RequestStatus, error) {
	path := "/approval/" + url.PathEscape(pairingID) + "/" + url.PathEscape(requestID)
	var res RequestStatus
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// QuestionSubmission is the wire shape for creating a question.
type QuestionSubmission struct {
	PairingID         string `json:"pairingId"`
	ID                string `json:"questionId,omitempty"`
	Question          string `json:"question"`
	RecommendedAnswer string `json:"recommendedAnswer"`
}

// QuestionState is the poll/answer response for a question.
type QuestionState struct {
	QuestionID string `json:"questionId"`
	Status     string `json:"status"`
	Answer     string `json:"answer"`
}

// CreateQuestion routes a question with a recommended answer to the watch.
func (c *Client) CreateQuestion(ctx context.Context, sub *QuestionSubmission) (string, error) {
	var res struct {
		QuestionID string `json:"questionId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/question", sub, &res); err != nil {
		return "", err
	}
	return res.QuestionID, nil
}

// PollQuestion reads the current state of one question. Called once a second
// by the hook's wait loop.
func (c *Client) PollQuestion(ctx context.Context, questionID, pairingID string) (*QuestionState, error) {
	path := "/question/" + url.PathEscape(questionID) + "?pairingId=" + url.QueryEscape(pairingID)
	var res QuestionState
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AnswerQuestion records the watch's decision: accept the recommendation or
// hand the question back to the terminal.
func (c *Client) AnswerQuestion(ctx context.Context, questionID, pairingID string, accept bool) (*QuestionState, error) {
	body := map[string]any{"pairingId": pairingID, "accept": accept}
	var res QuestionState
	if err := c.doJSON(ctx, http.MethodPost, "/question/"+url.PathEscape(questionID), body, &res); err != nil {
		return nil, err
	}
	if res.QuestionID == "" {
		res.QuestionID = questionID
	}
	return &res, nil
}

// SetProgress overwrites the live progress record for a pairing.
func (c *Client) SetProgress(ctx context.Context, progress *model.SessionProgress) error {
	return c.doJSON(ctx, http.MethodPost, "/session-progress", progress, nil)
}

// GetProgress reads the live progress record.
func (c *Client) GetProgress(ctx context.Context, pairingID string) (*model.SessionProgress, error) {
	var res model.SessionProgress
	if err := c.doJSON(ctx, http.MethodGet, "/session-progress/"+url.PathEscape(pairingID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetInterrupt applies a stop/resume/clear action to a session.
func (c *Client) SetInterrupt(ctx context.Context, pairingID string, action model.InterruptAction) (bool, error) {
	body := map[string]string{"pairingId": pairingID, "action": string(action)}
	var res struct {
		Interrupted bool `json:"interrupted"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/session-interrupt", body, &res); err != nil {
		return false, err
	}
	return res.Interrupted, nil
}

// GetInterrupt reads the interrupt flag for a session.
func (c *Client) GetInterrupt(ctx context.Context, pairingID string) (bool, error) {
	var res struct {
		Interrupted bool `json:"interrupted"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/session-interrupt/"+url.PathEscape(pairingID), nil, &res); err != nil {
		return false, err
	}
	return res.Interrupted, nil
}

// SessionActive reports whether the session for a pairing is still live.
func (c *Client) SessionActive(ctx context.Context, pairingID string) (bool, error) {
	var res struct {
		SessionActive bool `json:"sessionActive"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/session-status/"+url.PathEscape(pairingID), nil, &res); err != nil {
		return false, err
	}
	return res.SessionActive, nil
}

// EndSession clears the queue and session records for a pairing.
func (c *Client) EndSession(ctx context.Context, pairingID string) error {
	return c.doJSON(ctx, http.MethodPost, "/session-end", map[string]string{"pairingId": pairingID}, nil)
}

// Health checks the relay's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error      string `json:"error"`
			Code       string `json:"code"`
			RetryAfter int    `json:"retryAfter"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{
				StatusCode: resp.StatusCode,
				Code:       errResp.Code,
				Message:    errResp.Error,
				RetryAfter: errResp.RetryAfter,
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
