package crawlzip

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
)

// Protocol identifies the application protocol of an exchange.
type Protocol uint8

const (
	ProtocolHTTP Protocol = iota + 1
	ProtocolFTP
)

// String returns the lowercase protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolFTP:
		return "ftp"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Mode is the buffering strategy chosen for an exchange once its response
// headers are known.
type Mode uint8

const (
	// ModeDirect streams the payload straight into the archive entry; used
	// when the response declares its length up front.
	ModeDirect Mode = iota + 1

	// ModeSpooled buffers the payload in a temporary spool and archives it
	// once the response completes and the length is measured.
	ModeSpooled
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeSpooled:
		return "spooled"
	default:
		return "undecided"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Request describes the outgoing side of an exchange.
type Request struct {
	// URL is the target. Its host and resource name the archive entry.
	URL *url.URL

	// Method is the HTTP method or FTP command, informational only.
	Method string

	// Header holds HTTP request fields, informational only.
	Header http.Header
}

// Response describes the incoming side of an exchange.
type Response struct {
	// StatusCode is the HTTP status or FTP reply code.
	StatusCode int

	// Header holds HTTP response fields. The declared payload length is read
	// from Content-Length.
	Header http.Header

	// TransferSize is the FTP file size announced before the data transfer.
	// A negative value means the size is unknown; zero is a known empty file.
	TransferSize int64

	// Reply is the FTP reply text, informational only.
	Reply string
}

// declaredLength returns the Content-Length field when it is present and a
// valid non-negative integer.
func declaredLength(h http.Header) (uint64, bool) {
	v := strings.TrimSpace(h.Get("Content-Length"))
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// EntryRecord describes one archive entry after it was finalized.
type EntryRecord struct {
	// Name is the entry name inside the archive.
	Name string `json:"name"`

	// Protocol is the protocol of the recorded exchange.
	Protocol Protocol `json:"protocol"`

	// Mode is the buffering strategy used for the payload.
	Mode Mode `json:"mode"`

	// DeclaredSize is the size written into the entry header.
	DeclaredSize uint64 `json:"declared_size"`

	// WrittenSize is the number of payload bytes actually written.
	WrittenSize uint64 `json:"written_size"`

	// Digest is the sha256 digest of the written payload.
	Digest digest.Digest `json:"digest"`

	// Duration is the time between opening and finalizing the entry.
	Duration time.Duration `json:"duration"`

	// Aborted reports that the exchange failed or was closed before the
	// payload completed; the entry is left as written.
	Aborted bool `json:"aborted,omitempty"`
}

// SizeMismatch reports whether the written payload differs in length from
// the size declared in the entry header.
func (e EntryRecord) SizeMismatch() bool {
	return e.DeclaredSize != e.WrittenSize
}
