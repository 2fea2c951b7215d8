package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// zipSink writes a ZIP stream. ZIP records sizes after the payload (data
// descriptors), so the declared size is advisory: the archive always holds
// the bytes actually written.
type zipSink struct {
	zw      *zip.Writer
	method  uint16
	cfg     config
	current io.Writer
	closed  bool
}

func newZipSink(w io.Writer, cfg config) (*zipSink, error) {
	zw := zip.NewWriter(w)
	var method uint16
	switch cfg.compression {
	case CompressionNone:
		method = zip.Store
	case CompressionDeflate:
		method = zip.Deflate
	case CompressionZstd:
		method = zstd.ZipMethodWinZip
		zw.RegisterCompressor(method, zstd.ZipCompressor(zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true)))
	}
	if cfg.comment != "" {
		if err := zw.SetComment(cfg.comment); err != nil {
			return nil, fmt.Errorf("set comment: %w", err)
		}
	}
	return &zipSink{zw: zw, method: method, cfg: cfg}, nil
}

func (s *zipSink) StartEntry(name string, size uint64) error {
	if s.closed {
		return ErrClosed
	}
	hdr := &zip.FileHeader{
		Name:               name,
		Method:             s.method,
		Modified:           s.cfg.modTime,
		UncompressedSize64: size,
	}
	hdr.SetMode(entryMode)

	w, err := s.zw.CreateHeader(hdr)
	if err != nil {
		s.current = nil
		return fmt.Errorf("create entry %q: %w", name, err)
	}
	s.current = w
	return nil
}

func (s *zipSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if s.current == nil {
		return 0, ErrNoEntry
	}
	return s.current.Write(p)
}

func (s *zipSink) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.current = nil
	return s.zw.Close()
}
