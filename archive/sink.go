// Package archive encodes named payloads into a single streaming archive.
//
// A Sink writes entries one at a time. StartEntry opens an entry with a
// declared size and implicitly finishes the previous one; Write appends to the
// open entry; Close finishes the last entry and the archive stream.
//
// Two containers are supported:
//   - ZIP, with per-entry deflate (default), zstd, or store
//   - TAR, optionally wrapped in a gzip or zstd stream
//
// Sinks are single-writer and not safe for concurrent use. Callers that share
// a sink must serialize each StartEntry..Write sequence themselves.
package archive

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Errors returned by sinks.
var (
	// ErrUnsupportedFormat is returned by Open for an unknown format.
	ErrUnsupportedFormat = errors.New("archive: unsupported format")

	// ErrUnsupportedCompression is returned by Open for a compression the
	// format cannot represent.
	ErrUnsupportedCompression = errors.New("archive: unsupported compression")

	// ErrNoEntry is returned by Write when no entry has been started.
	ErrNoEntry = errors.New("archive: no entry started")

	// ErrEntryOverflow is returned when a write exceeds the declared size of a
	// size-exact entry (tar).
	ErrEntryOverflow = errors.New("archive: write exceeds declared entry size")

	// ErrSizeOverflow is returned when a declared size cannot be represented.
	ErrSizeOverflow = errors.New("archive: size overflow")

	// ErrClosed is returned by any call after Close.
	ErrClosed = errors.New("archive: sink closed")
)

// entryMode is the permission set recorded for every entry.
const entryMode = 0o644

// Sink receives archive entries.
type Sink interface {
	// StartEntry finishes the current entry, if any, and begins a new regular
	// file entry with the given name and declared size.
	StartEntry(name string, size uint64) error

	// Write appends p to the current entry.
	Write(p []byte) (int, error)

	// Close finishes the current entry and the archive stream.
	// It does not close the underlying writer.
	Close() error
}

type config struct {
	format      Format
	compression Compression
	comment     string
	modTime     time.Time
}

// Option configures Open.
type Option func(*config)

// WithFormat selects the archive container. Defaults to FormatZip.
func WithFormat(f Format) Option {
	return func(c *config) {
		c.format = f
	}
}

// WithCompression selects the compression. Defaults to CompressionDeflate.
func WithCompression(comp Compression) Option {
	return func(c *config) {
		c.compression = comp
	}
}

// WithComment sets the archive comment. Only ZIP archives store it.
func WithComment(s string) Option {
	return func(c *config) {
		c.comment = s
	}
}

// WithModTime sets the modification time recorded on every entry.
// Defaults to the time Open was called.
func WithModTime(t time.Time) Option {
	return func(c *config) {
		c.modTime = t
	}
}

// Open starts an archive stream on w.
func Open(w io.Writer, opts ...Option) (Sink, error) {
	if w == nil {
		return nil, errors.New("archive: nil writer")
	}
	cfg := config{
		format:      FormatZip,
		compression: CompressionDeflate,
		modTime:     time.Now(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.compression > CompressionZstd {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCompression, cfg.compression)
	}

	switch cfg.format {
	case FormatZip:
		return newZipSink(w, cfg)
	case FormatTar:
		return newTarSink(w, cfg)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, cfg.format)
	}
}
