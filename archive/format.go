package archive

import (
	"fmt"
	"strings"
)

// Format identifies the archive container.
type Format uint8

const (
	FormatZip Format = iota
	FormatTar
)

// String returns the human-readable name of the format.
func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	default:
		return "unknown"
	}
}

// Extension returns the conventional file extension for f combined with c.
func (f Format) Extension(c Compression) string {
	switch f {
	case FormatZip:
		return ".zip"
	case FormatTar:
		switch c {
		case CompressionDeflate:
			return ".tar.gz"
		case CompressionZstd:
			return ".tar.zst"
		default:
			return ".tar"
		}
	default:
		return ""
	}
}

// ParseFormat parses a format name as printed by Format.String.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zip":
		return FormatZip, nil
	case "tar":
		return FormatTar, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Compression identifies how entry payloads (zip) or the whole stream (tar)
// are compressed.
type Compression uint8

const (
	// CompressionNone stores payloads as-is (zip "store", plain tar).
	CompressionNone Compression = iota

	// CompressionDeflate uses deflate (zip) or gzip (tar).
	CompressionDeflate

	// CompressionZstd uses zstd (zip method 93, tar.zst).
	CompressionZstd
)

// String returns the human-readable name of the compression algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionDeflate:
		return "deflate"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompression parses a compression name. "gzip" and "store" are
// accepted as aliases for deflate and none.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "store":
		return CompressionNone, nil
	case "deflate", "gzip":
		return CompressionDeflate, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCompression, s)
	}
}
