package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roddutra/mcp-gateway/internal/filelock"
)

// ErrSinkClosed names the closed-sink condition; no Sink method returns it.
var ErrSinkClosed = errors.New("audit: sink closed")

// Sink is the Audit Sink component. Writes are buffered through a channel
// and flushed by a single background goroutine so that Record never blocks
// request handling long enough to affect P95, per spec.md §4.3's contract.
// A single writer goroutine also gives line atomicity under concurrent
// appends without locking the request path (spec.md §5).
type Sink struct {
	logger *slog.Logger
	path   string

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	records chan Record
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
	metrics *Metrics
	dropped int64
}

// Options configures a Sink.
type Options struct {
	// Dir is the directory the JSONL audit log is written into.
	Dir string
	// ChannelSize bounds the number of records buffered before Record
	// starts dropping (never blocking). Defaults to 1024.
	ChannelSize int
	Logger      *slog.Logger
	Metrics     *Metrics
}

// NewSink opens (or creates) the audit log file under dir and starts the
// background writer goroutine.
func NewSink(opts Options) (*Sink, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.ChannelSize <= 0 {
		opts.ChannelSize = 1024
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: creating directory %q: %w", opts.Dir, err)
	}
	path := filepath.Join(opts.Dir, "audit.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %q: %w", path, err)
	}
	if err := filelock.Lock(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("audit: another gateway process already holds %q: %w", path, err)
	}

	s := &Sink{
		logger:  opts.Logger,
		path:    path,
		file:    f,
		encoder: json.NewEncoder(f),
		records: make(chan Record, opts.ChannelSize),
		done:    make(chan struct{}),
		metrics: opts.Metrics,
	}
	go s.run()
	return s, nil
}

func (s *Sink) run() {
	defer close(s.done)
	for rec := range s.records {
		s.write(rec)
	}
}

func (s *Sink) write(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.encoder.Encode(rec); err != nil {
		// Never fail the caller's request: log once and move on, per
		// spec.md §7 ("Audit sink errors are swallowed").
		s.logger.Error("audit: write failed", "error", err, "path", s.path)
	}
}

// Record appends one audit record without blocking the caller. If the
// internal buffer is full the record is dropped and counted, rather than
// stalling request handling.
func (s *Sink) Record(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if s.metrics != nil {
		s.metrics.Observe(rec)
	}

	select {
	case s.records <- rec:
	default:
		s.dropped++
		s.logger.Warn("audit: buffer full, dropping record",
			"agent_id", rec.AgentID, "operation", rec.Operation, "dropped_total", s.dropped)
	}
}

// Flush is a no-op placeholder retained for interface symmetry with a
// batching implementation; every record is written as it is dequeued.
func (s *Sink) Flush(ctx context.Context) error {
	return nil
}

// Close stops accepting new records, drains the buffer, and closes the
// underlying file.
func (s *Sink) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	close(s.records)
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
