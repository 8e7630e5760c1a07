// Package session tracks ephemeral live-status records per pairing.
//
// Progress and interrupt records are last-write-wins with no history: the
// hook overwrites them wholesale, the watch reads them. Short TTLs mean a
// crashed hook degrades to "no active session" on the watch instead of a
// permanently stuck progress bar.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/edgeoftrust/watchrelay/internal/kv"
	"github.com/edgeoftrust/watchrelay/internal/model"
)

// ErrNotFound is returned when no record exists for the pairing. The watch
// treats it as "no active session".
var ErrNotFound = errors.New("session: not found")

const (
	// ProgressTTL bounds how stale a progress bar can get.
	ProgressTTL = 300 * time.Second

	// InterruptTTL bounds how long a pause outlives a dead hook.
	InterruptTTL = 300 * time.Second

	// activeTTL covers the session-active flag consulted by the hook before
	// enqueueing. Generous: it only needs to outlive the working session.
	activeTTL = 24 * time.Hour
)

// Tracker stores progress, interrupt, and session-active records.
type Tracker struct {
	store        kv.Store
	progressTTL  time.Duration
	interruptTTL time.Duration
}

// NewTracker creates a tracker backed by the given store.
func NewTracker(store kv.Store) *Tracker {
	return &Tracker{
		store:        store,
		progressTTL:  ProgressTTL,
		interruptTTL: InterruptTTL,
	}
}

func progressKey(pairingID string) string { return "progress:" + pairingID }

func interruptKey(pairingID string) string { return "interrupt:" + pairingID }

func sessionKey(pairingID string) string { return "session:" + pairingID }

// SetProgress overwrites the progress record for the pairing. It also marks
// the session active so the hook's session-status check passes.
func (t *Tracker) SetProgress(ctx context.Context, p *model.SessionProgress) error {
	p.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := t.store.Put(ctx, progressKey(p.PairingID), data, t.progressTTL); err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return t.markActive(ctx, p.PairingID)
}

// GetProgress returns the latest progress record, or ErrNotFound.
func (t *Tracker) GetProgress(ctx context.Context, pairingID string) (*model.SessionProgress, error) {
	data, err := t.store.Get(ctx, progressKey(pairingID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	var p model.SessionProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &p, nil
}

// SetInterrupt applies a watch-originated control action. Stop sets the
// advisory pause flag, resume lowers it, clear deletes the record.
func (t *Tracker) SetInterrupt(ctx context.Context, pairingID string, action model.InterruptAction) (*model.SessionInterrupt, error) {
	if action == model.InterruptClear {
		if err := t.store.Delete(ctx, interruptKey(pairingID)); err != nil {
			return nil, fmt.Errorf("clear interrupt: %w", err)
		}
		return &model.SessionInterrupt{PairingID: pairingID, Interrupted: false, Action: action}, nil
	}

	rec := &model.SessionInterrupt{
		PairingID:   pairingID,
		Interrupted: action == model.InterruptStop,
		Action:      action,
		UpdatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode interrupt: %w", err)
	}
	if err := t.store.Put(ctx, interruptKey(pairingID), data, t.interruptTTL); err != nil {
		return nil, fmt.Errorf("store interrupt: %w", err)
	}
	return rec, nil
}

// GetInterrupt returns the interrupt state. A missing record means not
// interrupted; the hook polls this between tool invocations.
func (t *Tracker) GetInterrupt(ctx context.Context, pairingID string) (*model.SessionInterrupt, error) {
	data, err := t.store.Get(ctx, interruptKey(pairingID))
	if errors.Is(err, kv.ErrNotFound) {
		return &model.SessionInterrupt{PairingID: pairingID, Interrupted: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load interrupt: %w", err)
	}

	var rec model.SessionInterrupt
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode interrupt: %w", err)
	}
	return &rec, nil
}

// Active reports whether the session for pairingID is live. True until End
// is called; a pairing with no recorded activity counts as live so a fresh
// session works before its first progress write.
func (t *Tracker) Active(ctx context.Context, pairingID string) (bool, error) {
	data, err := t.store.Get(ctx, sessionKey(pairingID))
	if errors.Is(err, kv.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load session flag: %w", err)
	}
	return string(data) == "active", nil
}

// End marks the session finished and deletes the progress and interrupt
// records. The approval queue is cleared separately by the caller.
func (t *Tracker) End(ctx context.Context, pairingID string) error {
	if err := t.store.Put(ctx, sessionKey(pairingID), []byte("ended"), activeTTL); err != nil {
		return fmt.Errorf("mark session ended: %w", err)
	}
	if err := t.store.Delete(ctx, progressKey(pairingID)); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	if err := t.store.Delete(ctx, interruptKey(pairingID)); err != nil {
		return fmt.Errorf("clear interrupt: %w", err)
	}
	return nil
}

func (t *Tracker) markActive(ctx context.Context, pairingID string) error {
	if err := t.store.Put(ctx, sessionKey(pairingID), []byte("active"), activeTTL); err != nil {
		return fmt.Errorf("mark session active: %w", err)
	}
	return nil
}
