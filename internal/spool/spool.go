// Package spool provides a write-once, drain-once byte buffer backed by an
// anonymous temporary file.
//
// A Spool is used when a payload must be fully received before its length is
// known. It moves through four states:
//
//	writing -> sealed -> draining -> released
//
// Write appends while writing. Seal fixes the length. Drain re-reads the
// content from offset 0 in bounded chunks and releases the file when done.
// Release may be called in any state to discard the content.
//
// A Spool is not safe for concurrent use.
package spool

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
)

// DefaultChunkSize is the chunk size used by Drain when chunkSize <= 0.
const DefaultChunkSize = 512 << 10

var (
	// ErrSealed is returned by Write after Seal.
	ErrSealed = errors.New("spool: sealed")

	// ErrNotSealed is returned by Drain before Seal.
	ErrNotSealed = errors.New("spool: not sealed")

	// ErrReleased is returned by any operation after Release.
	ErrReleased = errors.New("spool: released")

	// ErrOverflow is returned when the spooled length overflows uint64.
	ErrOverflow = errors.New("spool: size overflow")
)

type state uint8

const (
	stateWriting state = iota
	stateSealed
	stateDraining
	stateReleased
)

// Spool is an unbounded byte buffer on temporary storage.
type Spool struct {
	f     *os.File
	name  string // path while the file is still linked; empty once unlinked
	n     uint64
	state state
}

// New creates a Spool whose backing file lives in dir.
// An empty dir uses os.TempDir.
func New(dir string) (*Spool, error) {
	f, err := os.CreateTemp(dir, "crawlzip-spool-*")
	if err != nil {
		return nil, fmt.Errorf("create spool: %w", err)
	}
	s := &Spool{f: f, name: f.Name()}
	if err := s.unlink(); err != nil {
		_ = f.Close()         //nolint:errcheck // best-effort cleanup
		_ = os.Remove(s.name) //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("unlink spool: %w", err)
	}
	return s, nil
}

// Write appends p to the spool.
func (s *Spool) Write(p []byte) (int, error) {
	switch s.state {
	case stateWriting:
	case stateReleased:
		return 0, ErrReleased
	default:
		return 0, ErrSealed
	}
	n, err := s.f.Write(p)
	if n > 0 {
		if s.n > ^uint64(0)-uint64(n) {
			return n, ErrOverflow
		}
		s.n += uint64(n)
	}
	if err != nil {
		return n, fmt.Errorf("write spool: %w", err)
	}
	return n, nil
}

// Seal stops accepting writes and returns the total number of bytes written.
// Sealing an already sealed spool returns the same length.
func (s *Spool) Seal() (uint64, error) {
	switch s.state {
	case stateWriting:
		s.state = stateSealed
	case stateReleased:
		return 0, ErrReleased
	}
	return s.n, nil
}

// Size returns the number of bytes written so far.
func (s *Spool) Size() uint64 {
	return s.n
}

// Drain returns a sequence over the sealed content in chunks of at most
// chunkSize bytes, starting at offset 0. A chunkSize <= 0 uses DefaultChunkSize.
//
// The yielded slice is reused between iterations and is only valid until the
// next one. The sequence is single-use: the spool is released when the
// sequence finishes, fails, or the caller stops early. The chunk lengths of a
// complete drain sum to the value returned by Seal.
func (s *Spool) Drain(chunkSize int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		switch s.state {
		case stateSealed:
		case stateReleased:
			yield(nil, ErrReleased)
			return
		default:
			yield(nil, ErrNotSealed)
			return
		}
		s.state = stateDraining
		defer s.Release() //nolint:errcheck // release errors surface nothing useful here

		if s.n == 0 {
			return
		}
		if _, err := s.f.Seek(0, io.SeekStart); err != nil {
			yield(nil, fmt.Errorf("rewind spool: %w", err))
			return
		}

		if chunkSize <= 0 {
			chunkSize = DefaultChunkSize
		}
		if uint64(chunkSize) > s.n {
			chunkSize = int(s.n) //nolint:gosec // bounded by chunkSize above
		}
		buf := make([]byte, chunkSize)

		var drained uint64
		for drained < s.n {
			want := min(uint64(len(buf)), s.n-drained)
			k, err := io.ReadFull(s.f, buf[:want])
			drained += uint64(k) //nolint:gosec // k is non-negative
			if k > 0 && !yield(buf[:k], nil) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("read spool: %w", err))
				return
			}
		}
	}
}

// Release closes and discards the backing file. It is safe to call more than once.
func (s *Spool) Release() error {
	if s.state == stateReleased {
		return nil
	}
	s.state = stateReleased
	err := s.f.Close()
	if s.name != "" {
		if rmErr := os.Remove(s.name); rmErr != nil && err == nil {
			err = rmErr
		}
		s.name = ""
	}
	return err
}
