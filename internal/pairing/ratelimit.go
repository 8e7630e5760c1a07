package pairing

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/edgeoftrust/watchrelay/internal/kv"
)

// Rate limit for pairing completion attempts: a sliding window per guessed
// code. This is an anti-abuse measure, not a correctness guarantee, so every
// store failure fails open.
const (
	rateWindow      = 15 * time.Minute
	rateMaxAttempts = 5
)

// RateLimitError is returned when the completion attempt window is exceeded.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "pairing: too many completion attempts"
}

// RateLimiter tracks completion attempts per target in the key-value store,
// so the window survives relay restarts and is shared across replicas.
type RateLimiter struct {
	store kv.Store
}

// NewRateLimiter creates a rate limiter backed by the given store.
func NewRateLimiter(store kv.Store) *RateLimiter {
	return &RateLimiter{store: store}
}

func rateKey(target string) string { return "rate:" + target }

// Allow records an attempt against target and returns a *RateLimitError when
// the sliding window is exhausted. Store errors are logged and allowed
// through.
func (l *RateLimiter) Allow(ctx context.Context, target string) error {
	now := time.Now()
	cutoff := now.Add(-rateWindow)

	var attempts []time.Time
	data, err := l.store.Get(ctx, rateKey(target))
	if err == nil {
		if err := json.Unmarshal(data, &attempts); err != nil {
			attempts = nil
		}
	}

	// Drop attempts that slid out of the window.
	kept := attempts[:0]
	for _, t := range attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	attempts = kept

	if len(attempts) >= rateMaxAttempts {
		oldest := attempts[0]
		for _, t := range attempts {
			if t.Before(oldest) {
				oldest = t
			}
		}
		retryAfter := oldest.Add(rateWindow).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}

	attempts = append(attempts, now)
	out, err := json.Marshal(attempts)
	if err == nil {
		err = l.store.Put(ctx, rateKey(target), out, rateWindow)
	}
	if err != nil {
		slog.Warn("rate limit counter write failed, allowing request", "error", err)
	}
	return nil
}

// Reset clears the attempt counter for target. Called after a successful
// completion so a legitimate re-pair isn't penalized by its own retries.
func (l *RateLimiter) Reset(ctx context.Context, target string) {
	if err := l.store.Delete(ctx, rateKey(target)); err != nil {
		slog.Warn("rate limit counter delete failed", "error", err)
	}
}
