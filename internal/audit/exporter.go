package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Destination is the interface for an export target (S3, etc.).
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Exporter runs periodic audit exports to one or more destinations.
type Exporter struct {
	log          *Log
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExporter creates an exporter that writes the log to the given
// destinations at the specified interval.
func NewExporter(log *Log, destinations []Destination, interval time.Duration, logger *slog.Logger) *Exporter {
	return &Exporter{
		log:          log,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic export. It runs an initial export immediately, then
// on each tick.
func (e *Exporter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx)
	}()
}

// Stop cancels the exporter and waits for the current export to finish.
func (e *Exporter) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Exporter) run(ctx context.Context) {
	e.exportOnce(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.exportOnce(ctx)
		}
	}
}

func (e *Exporter) exportOnce(ctx context.Context) {
	data, err := e.log.Bytes()
	if err != nil {
		e.logger.Error("audit export failed", "err", err)
		return
	}

	for i, dest := range e.destinations {
		if err := dest.Write(ctx, data); err != nil {
			e.logger.Error("audit destination write failed", "destination", i, "err", err)
		}
	}

	e.logger.Info("audit export completed", "destinations", len(e.destinations), "bytes", len(data))
}
