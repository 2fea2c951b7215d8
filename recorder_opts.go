package crawlzip

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meigma/crawlzip/archive"
	"github.com/meigma/crawlzip/internal/spool"
)

// DefaultChunkSize is the chunk size used to drain spooled payloads into the
// archive.
const DefaultChunkSize = spool.DefaultChunkSize

// EntryHook receives a record for every finalized entry. Calls are serialized
// with archive writes, so a hook must not call back into the Recorder.
type EntryHook func(EntryRecord)

type config struct {
	logger      *slog.Logger
	format      archive.Format
	compression archive.Compression
	spoolDir    string
	chunkSize   int
	hook        EntryHook
	registerer  prometheus.Registerer
	runID       uuid.UUID
}

func newConfig(opts []Option) config {
	cfg := config{
		format:      archive.FormatZip,
		compression: archive.CompressionDeflate,
		chunkSize:   DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.chunkSize <= 0 {
		cfg.chunkSize = DefaultChunkSize
	}
	if cfg.runID == uuid.Nil {
		cfg.runID = uuid.New()
	}
	return cfg
}

// Option configures a Recorder.
type Option func(*config)

// WithLogger sets the logger for recorder operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithFormat selects the archive container used by New and Create.
// Defaults to archive.FormatZip. Ignored by NewFromSink.
func WithFormat(f archive.Format) Option {
	return func(c *config) {
		c.format = f
	}
}

// WithCompression selects the archive compression used by New and Create.
// Defaults to archive.CompressionDeflate. Ignored by NewFromSink.
func WithCompression(comp archive.Compression) Option {
	return func(c *config) {
		c.compression = comp
	}
}

// WithSpoolDir sets the directory for temporary spool files.
// Empty uses os.TempDir.
func WithSpoolDir(dir string) Option {
	return func(c *config) {
		c.spoolDir = dir
	}
}

// WithChunkSize sets the chunk size used to drain spools into the archive.
// Values <= 0 use DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(c *config) {
		c.chunkSize = n
	}
}

// WithEntryHook registers fn to receive a record for every finalized entry.
func WithEntryHook(fn EntryHook) Option {
	return func(c *config) {
		c.hook = fn
	}
}

// WithMetrics registers the recorder metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

// WithRunID sets the identifier of the crawl run. It is stored in the
// archive comment and attached to log records. Defaults to a random UUID.
func WithRunID(id uuid.UUID) Option {
	return func(c *config) {
		c.runID = id
	}
}
