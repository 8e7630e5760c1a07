package pairing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edgeoftrust/watchrelay/internal/kv"
)

func TestRateLimiterWindow(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	defer store.Close()
	l := NewRateLimiter(store)

	for i := 0; i < rateMaxAttempts; i++ {
		if err := l.Allow(ctx, "123456"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	err := l.Allow(ctx, "123456")
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("Allow = %v, want RateLimitError", err)
	}
	if rle.RetryAfter <= 0 || rle.RetryAfter > rateWindow {
		t.Errorf("RetryAfter = %v, want within (0, %v]", rle.RetryAfter, rateWindow)
	}

	// Independent targets have independent windows.
	if err := l.Allow(ctx, "654321"); err != nil {
		t.Errorf("other target blocked: %v", err)
	}
}

func TestRateLimiterReset(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	defer store.Close()
	l := NewRateLimiter(store)

	for i := 0; i < rateMaxAttempts; i++ {
		_ = l.Allow(ctx, "123456")
	}
	l.Reset(ctx, "123456")

	if err := l.Allow(ctx, "123456"); err != nil {
		t.Fatalf("Allow after Reset: %v", err)
	}
}

// failingStore returns an error from every operation.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (failingStore) Put(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("down") }
func (failingStore) Close() error                         { return nil }

// The limiter is anti-abuse, not correctness: store failures fail open.
func TestRateLimiterFailsOpen(t *testing.T) {
	l := NewRateLimiter(failingStore{})
	for i := 0; i < 20; i++ {
		if err := l.Allow(context.Background(), "123456"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
}
