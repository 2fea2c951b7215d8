package crawlzip

import (
	"errors"
	"fmt"
)

var (
	// ErrSinkOpen is returned when the archive cannot be initialized.
	// No recording is possible for the run.
	ErrSinkOpen = errors.New("crawlzip: open archive")

	// ErrSinkWrite is returned when starting or writing an archive entry
	// fails. The affected entry is left incomplete; the recorder stays usable.
	ErrSinkWrite = errors.New("crawlzip: archive write")

	// ErrSpoolIO is returned when the temporary spool cannot be written or read.
	ErrSpoolIO = errors.New("crawlzip: spool i/o")

	// ErrContractViolation is returned when a callback arrives out of
	// sequence or from the wrong protocol family.
	ErrContractViolation = errors.New("crawlzip: callback out of sequence")

	// ErrClosed is returned by operations on a closed recorder.
	ErrClosed = errors.New("crawlzip: recorder closed")
)

func sinkWriteError(op, name string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", ErrSinkWrite, op, name, err)
}

func spoolError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSpoolIO, op, err)
}

func contractError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrContractViolation, fmt.Sprintf(format, args...))
}
