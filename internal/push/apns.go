package push

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultGateway is the production APNs endpoint.
	DefaultGateway = "https://api.push.apple.com"

	// SandboxGateway is the development APNs endpoint.
	SandboxGateway = "https://api.sandbox.push.apple.com"

	// tokenLifetime is how long a signed provider token is reused. Apple
	// allows up to an hour; re-sign a little early.
	tokenLifetime = 55 * time.Minute
)

// APNSConfig holds the provider credentials for token-based APNs auth.
type APNSConfig struct {
	KeyID      string // Apple developer key ID (10 chars)
	TeamID     string // Apple developer team ID
	PrivateKey []byte // PEM-encoded PKCS#8 EC private key (.p8 file contents)
	Topic      string // app bundle ID
	Gateway    string // defaults to DefaultGateway
}

// APNSClient sends notifications over the APNs HTTP/2 API using short-lived
// ES256 provider tokens.
type APNSClient struct {
	cfg        APNSConfig
	key        *ecdsa.PrivateKey
	httpClient *http.Client

	mu          sync.Mutex
	bearerToken string
	issuedAt    time.Time
}

// Compile-time check that APNSClient implements Dispatcher.
var _ Dispatcher = (*APNSClient)(nil)

// NewAPNSClient parses the provider key and returns a client.
func NewAPNSClient(cfg APNSConfig) (*APNSClient, error) {
	if cfg.Gateway == "" {
		cfg.Gateway = DefaultGateway
	}

	block, _ := pem.Decode(cfg.PrivateKey)
	if block == nil {
		return nil, fmt.Errorf("apns: no PEM block in private key")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("apns: parse private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("apns: private key is %T, want ECDSA", parsed)
	}

	return &APNSClient{
		cfg:        cfg,
		key:        key,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// providerToken returns a cached signed token, re-signing after
// tokenLifetime.
func (c *APNSClient) providerToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.bearerToken != "" && now.Sub(c.issuedAt) < tokenLifetime {
		return c.bearerToken, nil
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": c.cfg.TeamID,
		"iat": now.Unix(),
	})
	tok.Header["kid"] = c.cfg.KeyID

	signed, err := tok.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("apns: sign provider token: %w", err)
	}
	c.bearerToken = signed
	c.issuedAt = now
	return signed, nil
}

// apsPayload is the wire shape the watch app expects: a standard aps alert
// plus the approval fields so the app can render the request without a
// round-trip.
type apsPayload struct {
	APS          apsBody `json:"aps"`
	RequestID    string  `json:"requestId,omitempty"`
	Type         string  `json:"type,omitempty"`
	Title        string  `json:"title,omitempty"`
	Description  string  `json:"description,omitempty"`
	FilePath     string  `json:"filePath,omitempty"`
	Command      string  `json:"command,omitempty"`
	PendingCount int     `json:"pendingCount,omitempty"`

	QuestionID        string `json:"questionId,omitempty"`
	Question          string `json:"question,omitempty"`
	RecommendedAnswer string `json:"recommendedAnswer,omitempty"`
}

type apsBody struct {
	Alert    apsAlert `json:"alert"`
	Sound    string   `json:"sound"`
	Category string   `json:"category"`
	Badge    int      `json:"badge"`
}

type apsAlert struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Subtitle string `json:"subtitle,omitempty"`
}

// Send posts the notification to the APNs gateway and classifies the
// response per the Dispatcher contract.
func (c *APNSClient) Send(ctx context.Context, deviceToken string, n *Notification) error {
	bearer, err := c.providerToken()
	if err != nil {
		return err
	}

	category := n.Category
	if category == "" {
		category = CategoryAction
	}
	payload := apsPayload{
		APS: apsBody{
			Alert:    apsAlert{Title: n.Title, Body: n.Body, Subtitle: n.Subtitle},
			Sound:    "default",
			Category: category,
			Badge:    n.Badge,
		},
		RequestID:    n.RequestID,
		Type:         n.Type,
		Title:        n.ReqTitle,
		Description:  n.Description,
		FilePath:     n.FilePath,
		Command:      n.Command,
		PendingCount: n.PendingCount,

		QuestionID:        n.QuestionID,
		Question:          n.Question,
		RecommendedAnswer: n.RecommendedAnswer,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("apns: encode payload: %w", err)
	}

	url := c.cfg.Gateway + "/3/device/" + deviceToken
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("apns: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apns-topic", c.cfg.Topic)
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("apns-priority", "10")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apns: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	var apnsErr struct {
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(respBody, &apnsErr)

	switch {
	case resp.StatusCode == http.StatusGone,
		apnsErr.Reason == "Unregistered",
		apnsErr.Reason == "BadDeviceToken",
		apnsErr.Reason == "DeviceTokenNotForTopic":
		return ErrBadToken
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Minute
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitedError{RetryAfter: retryAfter}
	}

	return fmt.Errorf("apns: status %d reason %q", resp.StatusCode, apnsErr.Reason)
}
