package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/crawlzip/internal/ioutil"
)

// tarSink writes a TAR stream, optionally compressed as a whole.
//
// TAR headers carry exact sizes. A short entry is zero-padded to its declared
// size when the next entry starts or the sink closes; a write past the
// declared size is truncated and returns ErrEntryOverflow.
type tarSink struct {
	tw        *tar.Writer
	comp      io.WriteCloser // nil when uncompressed
	cfg       config
	open      bool
	remaining uint64
	closed    bool
}

func newTarSink(w io.Writer, cfg config) (*tarSink, error) {
	s := &tarSink{cfg: cfg}
	switch cfg.compression {
	case CompressionNone:
		s.tw = tar.NewWriter(w)
	case CompressionDeflate:
		gz := gzip.NewWriter(w)
		s.comp = gz
		s.tw = tar.NewWriter(gz)
	case CompressionZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		s.comp = enc
		s.tw = tar.NewWriter(enc)
	}
	return s, nil
}

func (s *tarSink) StartEntry(name string, size uint64) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.finishEntry(); err != nil {
		return err
	}
	if size > math.MaxInt64 {
		return ErrSizeOverflow
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     int64(size),
		Mode:     entryMode,
		ModTime:  s.cfg.modTime,
	}
	if err := s.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %q: %w", name, err)
	}
	s.open = true
	s.remaining = size
	return nil
}

func (s *tarSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if !s.open {
		return 0, ErrNoEntry
	}
	overflow := uint64(len(p)) > s.remaining
	if overflow {
		p = p[:s.remaining]
	}
	n, err := s.tw.Write(p)
	s.remaining -= uint64(n) //nolint:gosec // n is non-negative and <= remaining
	if err != nil {
		return n, err
	}
	if overflow {
		return n, ErrEntryOverflow
	}
	return n, nil
}

// finishEntry pads the open entry up to its declared size.
func (s *tarSink) finishEntry() error {
	if !s.open {
		return nil
	}
	s.open = false
	if s.remaining == 0 {
		return nil
	}
	pad := s.remaining
	s.remaining = 0
	if err := ioutil.WriteZeros(s.tw, pad); err != nil {
		return fmt.Errorf("pad short entry: %w", err)
	}
	return nil
}

func (s *tarSink) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	err := s.finishEntry()
	if closeErr := s.tw.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if s.comp != nil {
		if closeErr := s.comp.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
