// Package question routes agent questions that carry a recommended answer to
// the watch for a binary decision: accept the recommendation, or hand the
// question back to the terminal.
package question

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
	// ErrInvalidPairing is returned by Create when the pairing ID has no
	// active pairing record.
	ErrInvalidPairing = errors.New("question: no active pairing")

	// ErrNotFound is returned when a question is unknown or has expired out
	// of the store.
	ErrNotFound = errors.New("question: not found or expired")

	// ErrUnauthorized is returned when the caller's pairing ID does not
	// match the one the question was created under.
	ErrUnauthorized = errors.New("question: pairing mismatch")

	// ErrConflict is returned by Answer when the question already carries
	// the opposite decision. The first decision wins.
	ErrConflict = errors.New("question: already answered with a different decision")
)

// TTL bounds how long an unanswered question stays pollable. Matches the
// hook's wait window with headroom for clock skew.
const TTL = 600 * time.Second

// Store holds pending questions, one key per question.
type Store struct {
	store    kv.Store
	pairings *pairing.Manager
	ttl      time.Duration

	// locks serializes read-modify-write per question ID within this process.
	locks sync.Map // questionID -> *sync.Mutex
}

// NewStore creates a question store backed by the given key-value store.
func NewStore(store kv.Store, pairings *pairing.Manager) *Store {
	return &Store{
		store:    store,
		pairings: pairings,
		ttl:      TTL,
	}
}

func questionKey(questionID string) string { return "question:" + questionID }

func (s *Store) lock(questionID string) func() {
	v, _ := s.locks.LoadOrStore(questionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Create stores q as pending and returns its ID. The caller may supply its
// own ID (the hook does, so it can poll without parsing the create
// response); otherwise one is assigned.
func (s *Store) Create(ctx context.Context, q *model.Question) (string, error) {
	rec, err := s.pairings.Get(ctx, q.PairingID)
	if err != nil || !rec.Active() {
		return "", ErrInvalidPairing
	}

	if q.ID == "" {
		id, err := idgen.QuestionID()
		if err != nil {
			return "", err
		}
		q.ID = id
	}
	q.Status = model.QuestionPending
	q.Answer = ""
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	if err := s.save(ctx, q); err != nil {
		return "", err
	}

	slog.Info("question created",
		"pairing_id", q.PairingID,
		"question_id", q.ID)
	return q.ID, nil
}

func (s *Store) save(ctx context.Context, q *model.Question) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode question: %w", err)
	}
	if err := s.store.Put(ctx, questionKey(q.ID), data, s.ttl); err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	return nil
}

// Get returns the question when pairingID matches the one it was created
// under. Possession of the pairing ID is the authorization model.
func (s *Store) Get(ctx context.Context, questionID, pairingID string) (*model.Question, error) {
	data, err := s.store.Get(ctx, questionKey(questionID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}

	var q model.Question
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("decode question: %w", err)
	}
	if q.PairingID != pairingID {
		return nil, ErrUnauthorized
	}
	return &q, nil
}

// Answer records the watch's decision. Accepting copies the recommended
// answer into Answer; declining marks the question handle_on_mac. Repeating
// an identical decision is a no-op success; a disagreeing second call
// returns ErrConflict and the first decision stands.
func (s *Store) Answer(ctx context.Context, questionID, pairingID string, accept bool) (*model.Question, error) {
	unlock := s.lock(questionID)
	defer unlock()

	q, err := s.Get(ctx, questionID, pairingID)
	if err != nil {
		return nil, err
	}

	want := model.QuestionHandleOnMac
	if accept {
		want = model.QuestionAccepted
	}

	if q.Status.Terminal() {
		if q.Status == want {
			return q, nil
		}
		return q, ErrConflict
	}

	q.Status = want
	if accept {
		q.Answer = q.RecommendedAnswer
	}
	if err := s.save(ctx, q); err != nil {
		return nil, err
	}

	slog.Info("question answered",
		"pairing_id", pairingID,
		"question_id", questionID,
		"status", want)
	return q, nil
}
