package crawlzip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/crawlzip/archive"
	"github.com/meigma/crawlzip/internal/metrics"
)

// Recorder owns the archive of one crawl run and mints a Session for every
// exchange.
//
// A Recorder is safe for concurrent use. Sessions share its archive; the
// entry write sequences of concurrent sessions are serialized so entries are
// never interleaved.
type Recorder struct {
	sink    archive.Sink
	file    *os.File // set by Create
	sem     *semaphore.Weighted
	cfg     config
	logger  *slog.Logger
	metrics *metrics.Collector
	entries atomic.Uint64
	aborted atomic.Uint64
	closed  atomic.Bool
}

// New starts an archive on dst. The caller keeps ownership of dst; Close
// finishes the archive stream but does not close dst.
//
// New fails with ErrSinkOpen when the archive cannot be initialized.
func New(dst io.Writer, opts ...Option) (*Recorder, error) {
	cfg := newConfig(opts)
	col, err := newCollector(cfg)
	if err != nil {
		return nil, err
	}
	sink, err := archive.Open(dst,
		archive.WithFormat(cfg.format),
		archive.WithCompression(cfg.compression),
		archive.WithComment("crawlzip run "+cfg.runID.String()),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkOpen, err)
	}
	return newRecorder(sink, cfg, col), nil
}

// Create creates or truncates the file at path and starts an archive in it.
// Close closes the file.
func Create(path string, opts ...Option) (*Recorder, error) {
	f, err := os.Create(path) //nolint:gosec // path is chosen by the caller
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkOpen, err)
	}
	r, err := New(f, opts...)
	if err != nil {
		_ = f.Close()       //nolint:errcheck // best-effort cleanup
		_ = os.Remove(path) //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewFromSink records into a caller-provided sink. Format and compression
// options are ignored. Close closes the sink.
func NewFromSink(sink archive.Sink, opts ...Option) (*Recorder, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: nil sink", ErrSinkOpen)
	}
	cfg := newConfig(opts)
	col, err := newCollector(cfg)
	if err != nil {
		return nil, err
	}
	return newRecorder(sink, cfg, col), nil
}

func newCollector(cfg config) (*metrics.Collector, error) {
	if cfg.registerer == nil {
		return nil, nil //nolint:nilnil // a nil collector disables metrics
	}
	col, err := metrics.NewCollector(cfg.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return col, nil
}

func newRecorder(sink archive.Sink, cfg config, col *metrics.Collector) *Recorder {
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Recorder{
		sink:    sink,
		sem:     semaphore.NewWeighted(1),
		cfg:     cfg,
		logger:  logger.With("run_id", cfg.runID.String()),
		metrics: col,
	}
	r.logger.Info("recording started", "format", cfg.format.String(), "compression", cfg.compression.String())
	return r
}

// RunID returns the identifier of the crawl run.
func (r *Recorder) RunID() uuid.UUID {
	return r.cfg.runID
}

// Entries returns the number of entries finalized so far, including
// aborted ones.
func (r *Recorder) Entries() uint64 {
	return r.entries.Load()
}

// Aborted returns how many of the finalized entries were left incomplete.
func (r *Recorder) Aborted() uint64 {
	return r.aborted.Load()
}

// NewSession returns an unbound Session for one exchange. ctx bounds how long
// the session waits for its turn to write into the archive.
//
// NewSession does not touch the archive; the session opens its entry once
// the exchange's response begins.
func (r *Recorder) NewSession(ctx context.Context) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Session{rec: r, ctx: ctx}
}

// Close waits for the entry being written, if any, then finishes the archive
// stream. A second call returns ErrClosed.
//
// Sessions must be closed before the Recorder; a session holding an open
// entry blocks Close until it finishes.
func (r *Recorder) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	_ = r.sem.Acquire(context.Background(), 1) //nolint:errcheck // background context never fails
	defer r.sem.Release(1)

	err := r.sink.Close()
	if r.file != nil {
		err = errors.Join(err, r.file.Close())
	}
	if err != nil {
		r.logger.Error("closing archive failed", "error", err)
		return fmt.Errorf("close archive: %w", err)
	}
	r.logger.Info("recording finished", "entries", r.entries.Load(), "aborted", r.aborted.Load())
	return nil
}

// beginEntry waits for exclusive use of the archive and starts an entry.
// On success the caller owns the archive until the returned writer finishes.
func (r *Recorder) beginEntry(ctx context.Context, name string, size uint64, protocol Protocol, mode Mode) (*entryWriter, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for archive: %w", err)
	}
	if r.closed.Load() {
		r.sem.Release(1)
		return nil, ErrClosed
	}
	if err := r.sink.StartEntry(name, size); err != nil {
		r.sem.Release(1)
		r.metrics.Error(metrics.KindSinkWrite)
		return nil, sinkWriteError("start entry", name, err)
	}
	r.logger.Debug("entry started", "entry", name, "size", size, "protocol", protocol.String(), "mode", mode.String())
	return newEntryWriter(r, EntryRecord{
		Name:         name,
		Protocol:     protocol,
		Mode:         mode,
		DeclaredSize: size,
	}), nil
}
