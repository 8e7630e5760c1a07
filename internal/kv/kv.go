// Package kv defines the key-value persistence interface for the relay.
//
// The relay keeps no cross-request state in process; everything lives behind
// this interface under namespaced keys (pairing:{id}, approval_queue:{id},
// progress:{id}, ...), each with its own TTL policy. Correctness relies only
// on the store's per-key atomicity for Get/Put/Delete.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or its TTL has
// elapsed. Callers treat an expired key exactly like a missing one.
var ErrNotFound = errors.New("kv: key not found")

// Store is the persistence interface for the relay.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value at key. A ttl of zero means no expiration; a positive
	// ttl replaces any previous expiration for the key.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Lifecycle
	Close() error
}
