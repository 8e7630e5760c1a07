// Package queue holds pending approval requests per pairing.
//
// The queue for one pairing is a single JSON array under
// approval_queue:{pairingId}. Enqueue and resolve are read-modify-write over
// that one key; a per-pairing mutex serializes writers within this process,
// and the flat key-value store's per-key atomicity is the only guarantee
// across replicas. The window is acceptable because the queue is
// append-mostly and a resolve only flips one record's own status field.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edgeoftrust/watchrelay/internal/idgen"
	"github.com/edgeoftrust/watchrelay/internal/kv"
	"github.com/edgeoftrust/watchrelay/internal/model"
	"github.com/edgeoftrust/watchrelay/internal/pairing"
)

var (
	// ErrInvalidPairing is returned by Enqueue when the pairing ID has no
	// active pairing record.
	ErrInvalidPairing = errors.New("queue: no active pairing")

	// ErrNotFound is returned when a request is unknown or its queue entry
	// has expired out of the store.
	ErrNotFound = errors.New("queue: request not found or expired")

	// ErrUnauthorized is returned by Resolve when the caller's pairing ID
	// does not match the one the request was created under.
	ErrUnauthorized = errors.New("queue: pairing mismatch")

	// ErrConflict is returned by Resolve when the request already carries
	// the opposite decision. The first decision wins.
	ErrConflict = errors.New("queue: request already resolved with a different decision")
)

// TTL is the queue lifetime, refreshed from the last write. A burst of late
// enqueues extends already-resolved earlier entries; acceptable since
// terminal entries are filtered from the pending view.
const TTL = 600 * time.Second

// Queue is the per-pairing approval queue.
type Queue struct {
	store    kv.Store
	pairings *pairing.Manager
	ttl      time.Duration

	// locks serializes read-modify-write per pairing ID within this process.
	locks sync.Map // pairingID -> *sync.Mutex
}

// New creates a queue backed by the given store. Pairing validation goes
// through the pairing manager.
func New(store kv.Store, pairings *pairing.Manager) *Queue {
	return &Queue{
		store:    store,
		pairings: pairings,
		ttl:      TTL,
	}
}

func queueKey(pairingID string) string { return "approval_queue:" + pairingID }

// requestKey indexes a request ID back to its owning pairing, so Resolve can
// tell a mismatched pairing (Unauthorized) apart from an expired request.
func requestKey(requestID string) string { return "request:" + requestID }

func (q *Queue) lock(pairingID string) func() {
	v, _ := q.locks.LoadOrStore(pairingID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// load reads and decodes the queue for pairingID. A missing key is an empty
// queue, not an error.
func (q *Queue) load(ctx context.Context, pairingID string) ([]*model.ApprovalRequest, error) {
	data, err := q.store.Get(ctx, queueKey(pairingID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	var reqs []*model.ApprovalRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	return reqs, nil
}

// save writes the queue back with a refreshed TTL. The ownership index of
// every listed request is refreshed alongside: a late enqueue extends the
// queue's life, and a request must stay resolvable for as long as it is
// listed.
func (q *Queue) save(ctx context.Context, pairingID string, reqs []*model.ApprovalRequest) error {
	data, err := json.Marshal(reqs)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := q.store.Put(ctx, queueKey(pairingID), data, q.ttl); err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	for _, r := range reqs {
		if err := q.store.Put(ctx, requestKey(r.ID), []byte(pairingID), q.ttl); err != nil {
			slog.Warn("failed to refresh request index", "request_id", r.ID, "error", err)
		}
	}
	return nil
}

// Enqueue appends req to the pairing's queue and returns the request ID.
// The caller may supply its own ID (the hook does, so it can poll without
// parsing the enqueue response); otherwise one is assigned. Duplicate IDs
// within a queue are rejected.
func (q *Queue) Enqueue(ctx context.Context, req *model.ApprovalRequest) (string, error) {
	rec, err := q.pairings.Get(ctx, req.PairingID)
	if err != nil || !rec.Active() {
		return "", ErrInvalidPairing
	}

	if req.ID == "" {
		id, err := idgen.RequestID()
		if err != nil {
			return "", err
		}
		req.ID = id
	}
	req.Status = model.StatusPending
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	unlock := q.lock(req.PairingID)
	defer unlock()

	reqs, err := q.load(ctx, req.PairingID)
	if err != nil {
		return "", err
	}
	for _, r := range reqs {
		if r.ID == req.ID {
			return "", fmt.Errorf("queue: duplicate request id %q", req.ID)
		}
	}

	reqs = append(reqs, req)
	if err := q.save(ctx, req.PairingID, reqs); err != nil {
		return "", err
	}

	slog.Info("approval enqueued",
		"pairing_id", req.PairingID,
		"request_id", req.ID,
		"type", req.Type,
		"pending", countPending(reqs))
	return req.ID, nil
}

// ListPending returns the pending entries for pairingID in enqueue (FIFO)
// order. The watch resolves requests roughly in the order the agent issued
// them, and its "N more pending" count depends on stable ordering.
func (q *Queue) ListPending(ctx context.Context, pairingID string) ([]*model.ApprovalRequest, error) {
	reqs, err := q.load(ctx, pairingID)
	if err != nil {
		return nil, err
	}

	pending := make([]*model.ApprovalRequest, 0, len(reqs))
	for _, r := range reqs {
		if r.Status == model.StatusPending {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

// Resolve flips a pending request to approved or rejected. The caller must
// present the pairing ID the request was created under; possession of the
// pairing ID is the authorization model. Repeating an identical resolution
// is a no-op success; a disagreeing second call returns ErrConflict and the
// first decision stands.
func (q *Queue) Resolve(ctx context.Context, requestID, pairingID string, approved bool) (model.ApprovalStatus, error) {
	owner, err := q.store.Get(ctx, requestKey(requestID))
	switch {
	case errors.Is(err, kv.ErrNotFound):
		// Index missing but the queue may still list the request (an index
		// write can fail independently). The caller's own queue is
		// authoritative for requests it owns, so fall through to the scan.
	case err != nil:
		return "", fmt.Errorf("lookup request owner: %w", err)
	case string(owner) != pairingID:
		return "", ErrUnauthorized
	}

	unlock := q.lock(pairingID)
	defer unlock()

	reqs, err := q.load(ctx, pairingID)
	if err != nil {
		return "", err
	}

	var target *model.ApprovalRequest
	for _, r := range reqs {
		if r.ID == requestID {
			target = r
			break
		}
	}
	if target == nil {
		// Indexed but gone from the queue: cleared or expired.
		return "", ErrNotFound
	}

	want := model.StatusRejected
	if approved {
		want = model.StatusApproved
	}

	if target.Status.Terminal() {
		if target.Status == want {
			return target.Status, nil
		}
		return target.Status, ErrConflict
	}

	target.Status = want
	if err := q.save(ctx, pairingID, reqs); err != nil {
		return "", err
	}

	slog.Info("approval resolved",
		"pairing_id", pairingID,
		"request_id", requestID,
		"status", want)
	return want, nil
}

// Status returns the current status of one request. Safe to call at
// sub-second frequency; it is a single key read with no side effects.
func (q *Queue) Status(ctx context.Context, pairingID, requestID string) (*model.ApprovalRequest, error) {
	reqs, err := q.load(ctx, pairingID)
	if err != nil {
		return nil, err
	}
	for _, r := range reqs {
		if r.ID == requestID {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// Clear deletes the whole queue for pairingID. Called on session end so a
// late approval cannot resurrect a finished session.
func (q *Queue) Clear(ctx context.Context, pairingID string) error {
	unlock := q.lock(pairingID)
	defer unlock()

	if err := q.store.Delete(ctx, queueKey(pairingID)); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

// PendingCount returns the number of pending entries, used for push badges.
func (q *Queue) PendingCount(ctx context.Context, pairingID string) int {
	pending, err := q.ListPending(ctx, pairingID)
	if err != nil {
		return 0
	}
	return len(pending)
}

func countPending(reqs []*model.ApprovalRequest) int {
	n := 0
	for _, r := range reqs {
		if r.Status == model.StatusPending {
			n++
		}
	}
	return n
}
