// Package pairing issues and completes watch pairings.
//
// A pairing starts as a pending record keyed by a fresh watch ID, bound to a
// short numeric code the developer reads off the terminal and enters on the
// watch. Completing the code mints the durable pairing ID that keys every
// queue and session operation afterwards.
package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/edgeoftrust/watchrelay/internal/idgen"
	"github.com/edgeoftrust/watchrelay/internal/kv"
	"github.com/edgeoftrust/watchrelay/internal/model"
)

// ErrNotFound is returned when a code, watch ID, or pairing ID is unknown or
// has expired. Expired and never-issued are deliberately indistinguishable.
var ErrNotFound = errors.New("pairing: not found or expired")

// CodeTTL is how long an unconfirmed pairing code stays valid.
const CodeTTL = 600 * time.Second

// Manager issues short pairing codes and completes them into active pairings.
type Manager struct {
	store   kv.Store
	limiter *RateLimiter
	codeTTL time.Duration
}

// InitiateResult is returned from Initiate.
type InitiateResult struct {
	Code      string
	WatchID   string
	ExpiresIn int // seconds
}

// StatusResult is returned from Status.
type StatusResult struct {
	Paired    bool
	PairingID string
}

// NewManager creates a pairing manager backed by the given store.
func NewManager(store kv.Store) *Manager {
	return &Manager{
		store:   store,
		limiter: NewRateLimiter(store),
		codeTTL: CodeTTL,
	}
}

func watchKey(watchID string) string { return "watch:" + watchID }

func codeKey(code string) string { return "code:" + code }

func pairingKey(pairingID string) string { return "pairing:" + pairingID }

// Initiate generates a pairing code bound to a fresh watch ID and stores a
// pending record under both keys with the code TTL. Code collisions are
// acceptable: the code is a TTL-scoped lookup key, not an identity, and a
// collision merely re-points the code at the newer pairing attempt.
func (m *Manager) Initiate(ctx context.Context, deviceToken string) (*InitiateResult, error) {
	watchID, err := idgen.WatchID()
	if err != nil {
		return nil, err
	}
	code, err := idgen.PairingCode()
	if err != nil {
		return nil, err
	}

	rec := &model.PairingRecord{
		WatchID:     watchID,
		DeviceToken: deviceToken,
		Status:      model.PairingPending,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal pairing record: %w", err)
	}

	if err := m.store.Put(ctx, watchKey(watchID), data, m.codeTTL); err != nil {
		return nil, fmt.Errorf("store pending pairing: %w", err)
	}
	// The code maps back to the watch ID for completion lookup.
	if err := m.store.Put(ctx, codeKey(code), []byte(watchID), m.codeTTL); err != nil {
		return nil, fmt.Errorf("store code mapping: %w", err)
	}

	slog.Info("pairing initiated", "watch_id", watchID, "expires_in", int(m.codeTTL.Seconds()))
	return &InitiateResult{
		Code:      code,
		WatchID:   watchID,
		ExpiresIn: int(m.codeTTL.Seconds()),
	}, nil
}

// Complete consumes a pairing code, mints the durable pairing ID, and flips
// the record to active. The code mapping is deleted first so a code can be
// consumed at most once. The active record is stored without TTL; the
// pairing persists until explicitly unpaired.
func (m *Manager) Complete(ctx context.Context, code, deviceToken string) (string, error) {
	if err := m.limiter.Allow(ctx, code); err != nil {
		return "", err
	}

	watchIDBytes, err := m.store.Get(ctx, codeKey(code))
	if errors.Is(err, kv.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup code: %w", err)
	}
	watchID := string(watchIDBytes)

	data, err := m.store.Get(ctx, watchKey(watchID))
	if errors.Is(err, kv.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup pending pairing: %w", err)
	}

	var rec model.PairingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("decode pairing record: %w", err)
	}

	now := time.Now().UTC()
	rec.PairingID = uuid.NewString()
	rec.DeviceToken = deviceToken
	rec.Status = model.PairingActive
	rec.CompletedAt = &now

	out, err := json.Marshal(&rec)
	if err != nil {
		return "", fmt.Errorf("marshal pairing record: %w", err)
	}
	if err := m.store.Put(ctx, pairingKey(rec.PairingID), out, 0); err != nil {
		return "", fmt.Errorf("store active pairing: %w", err)
	}
	// Refresh the watch-keyed record so the waiting CLI's status poll sees
	// the completed pairing before the watch key expires.
	if err := m.store.Put(ctx, watchKey(watchID), out, m.codeTTL); err != nil {
		slog.Warn("failed to refresh watch record", "watch_id", watchID, "error", err)
	}

	// Single-use: drop the code mapping and the rate counter.
	if err := m.store.Delete(ctx, codeKey(code)); err != nil {
		slog.Warn("failed to delete consumed code", "error", err)
	}
	m.limiter.Reset(ctx, code)

	slog.Info("pairing completed", "pairing_id", rec.PairingID, "watch_id", watchID)
	return rec.PairingID, nil
}

// Status reports whether the pairing for watchID has completed. Polled by
// the CLI while the developer enters the code on the watch.
func (m *Manager) Status(ctx context.Context, watchID string) (*StatusResult, error) {
	data, err := m.store.Get(ctx, watchKey(watchID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup pairing status: %w", err)
	}

	var rec model.PairingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode pairing record: %w", err)
	}

	if !rec.Active() {
		return &StatusResult{Paired: false}, nil
	}
	return &StatusResult{Paired: true, PairingID: rec.PairingID}, nil
}

// Get returns the active pairing record for pairingID, or ErrNotFound. The
// approval queue calls this to validate a pairing before accepting work; the
// push dispatcher calls it for the device token.
func (m *Manager) Get(ctx context.Context, pairingID string) (*model.PairingRecord, error) {
	data, err := m.store.Get(ctx, pairingKey(pairingID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup pairing: %w", err)
	}

	var rec model.PairingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode pairing record: %w", err)
	}
	return &rec, nil
}

// DropDeviceToken clears the stored device token for a pairing. Called when
// the push gateway reports the token unregistered; the watch falls back to
// its own polling.
func (m *Manager) DropDeviceToken(ctx context.Context, pairingID string) error {
	rec, err := m.Get(ctx, pairingID)
	if err != nil {
		return err
	}
	rec.DeviceToken = ""
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal pairing record: %w", err)
	}
	return m.store.Put(ctx, pairingKey(pairingID), data, 0)
}
