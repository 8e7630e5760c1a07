package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/edgeoftrust/watchrelay/internal/model"
)

func TestLogRecordAndSnapshot(t *testing.T) {
	l := NewLog()
	l.Record(Entry{Event: "enqueued", PairingID: "p1", RequestID: "req-1", Type: model.TypeBash.String()})
	l.Record(Entry{Event: "resolved", PairingID: "p1", RequestID: "req-1", Status: string(model.StatusApproved)})

	snap := l.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len = %d, want 2", len(snap))
	}
	if snap[0].Event != "enqueued" || snap[1].Event != "resolved" {
		t.Errorf("order wrong: %+v", snap)
	}
	if snap[0].Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestLogBounded(t *testing.T) {
	l := NewLog()
	for i := 0; i < maxEntries+100; i++ {
		l.Record(Entry{Event: "enqueued"})
	}
	if n := len(l.Snapshot()); n != maxEntries {
		t.Errorf("len = %d, want %d", n, maxEntries)
	}
}

func TestWriteJSONL(t *testing.T) {
	l := NewLog()
	l.Record(Entry{Event: "resolved", PairingID: "p1", RequestID: "req-1", Status: string(model.StatusRejected)})

	var buf bytes.Buffer
	if err := l.WriteJSONL(&buf); err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	if !scanner.Scan() {
		t.Fatal("missing header line")
	}
	var h header
	if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if h.Type != "watchrelay-audit" || h.EntryCount != 1 {
		t.Errorf("header = %+v", h)
	}

	if !scanner.Scan() {
		t.Fatal("missing entry line")
	}
	var e Entry
	if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if e.RequestID != "req-1" || e.Status != string(model.StatusRejected) {
		t.Errorf("entry = %+v", e)
	}
}

// memDestination captures writes for assertions.
type memDestination struct {
	mu     sync.Mutex
	writes [][]byte
}

func (d *memDestination) Write(_ context.Context, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	d.writes = append(d.writes, cp)
	return nil
}

func (d *memDestination) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}

func TestExporterWritesImmediatelyAndStops(t *testing.T) {
	l := NewLog()
	l.Record(Entry{Event: "enqueued", PairingID: "p1"})

	dest := &memDestination{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	e := NewExporter(l, []Destination{dest}, time.Hour, logger)
	e.Start()

	deadline := time.After(2 * time.Second)
	for dest.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no export within deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}
	e.Stop()

	if dest.count() < 1 {
		t.Fatal("expected at least one export")
	}
}
