// Package testutil provides test doubles for the recorder.
package testutil

import (
	"errors"
	"sync"
)

// Sink operations recorded by MockSink.
const (
	OpStart = "start"
	OpWrite = "write"
	OpClose = "close"
)

// ErrNoEntry is returned by MockSink.Write before any StartEntry.
var ErrNoEntry = errors.New("mock sink: no entry")

// Event is one call observed by MockSink.
type Event struct {
	Op   string
	Name string // entry name of a start, or the current entry of a write
	Size uint64 // declared size of a start
	Data []byte // copy of the bytes of a write
}

// Entry is the aggregated view of one started entry.
type Entry struct {
	Name string
	Size uint64
	Data []byte
}

// MockSink implements archive.Sink in memory and records every call.
// It is safe for concurrent use, though the recorder never calls it
// concurrently.
type MockSink struct {
	// FailStart, when set, may fail a StartEntry call.
	FailStart func(name string) error

	// FailWrite, when set, may fail a Write call for the named entry.
	FailWrite func(name string, p []byte) error

	// CloseErr is returned by Close.
	CloseErr error

	mu      sync.Mutex
	events  []Event
	current string
	started bool
}

// NewMockSink returns an empty MockSink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// StartEntry implements archive.Sink.
func (s *MockSink) StartEntry(name string, size uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailStart != nil {
		if err := s.FailStart(name); err != nil {
			return err
		}
	}
	s.events = append(s.events, Event{Op: OpStart, Name: name, Size: size})
	s.current = name
	s.started = true
	return nil
}

// Write implements archive.Sink.
func (s *MockSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return 0, ErrNoEntry
	}
	if s.FailWrite != nil {
		if err := s.FailWrite(s.current, p); err != nil {
			return 0, err
		}
	}
	s.events = append(s.events, Event{Op: OpWrite, Name: s.current, Data: append([]byte(nil), p...)})
	return len(p), nil
}

// Close implements archive.Sink.
func (s *MockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{Op: OpClose})
	return s.CloseErr
}

// Events returns a copy of the recorded calls in order.
func (s *MockSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Entries returns the started entries in order with their concatenated
// payloads.
func (s *MockSink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, ev := range s.events {
		switch ev.Op {
		case OpStart:
			out = append(out, Entry{Name: ev.Name, Size: ev.Size, Data: []byte{}})
		case OpWrite:
			last := &out[len(out)-1]
			last.Data = append(last.Data, ev.Data...)
		}
	}
	return out
}

// Closes returns how many times Close was called.
func (s *MockSink) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Op == OpClose {
			n++
		}
	}
	return n
}
