// Package audit keeps a bounded in-memory trail of approval decisions and
// exports it as JSONL for ops. The relay's own persistence is deliberately
// short-TTL, so the trail is the only record of who approved what once the
// queue keys expire. Export is best-effort and never blocks request paths.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// maxEntries bounds the in-memory trail. Oldest entries are dropped first;
// the exporter is expected to run well before the buffer wraps.
const maxEntries = 4096

// Entry is one audit record. Event is one of "enqueued", "resolved",
// "cleared", "question_created", "question_answered". RequestID carries the
// question ID for question events.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	PairingID string    `json:"pairingId"`
	RequestID string    `json:"requestId,omitempty"`
	Type      string    `json:"type,omitempty"`
	Title     string    `json:"title,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// Log is a concurrency-safe ring buffer of audit entries.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

// NewLog creates an empty audit log.
func NewLog() *Log {
	return &Log{}
}

// Record appends an entry, stamping it if the caller did not.
func (l *Log) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if len(l.entries) > maxEntries {
		l.entries = l.entries[len(l.entries)-maxEntries:]
	}
}

// Snapshot returns a copy of the current entries, oldest first.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// header is the first JSONL record written by WriteJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	EntryCount int       `json:"entryCount"`
}

// WriteJSONL writes the trail as JSONL to w: a header line followed by one
// line per entry.
func (l *Log) WriteJSONL(w io.Writer) error {
	entries := l.Snapshot()

	enc := json.NewEncoder(w)
	if err := enc.Encode(header{
		Version:    "1",
		Type:       "watchrelay-audit",
		Timestamp:  time.Now().UTC(),
		EntryCount: len(entries),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
	}
	return nil
}

// Bytes renders the JSONL export in memory.
func (l *Log) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := l.WriteJSONL(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
