package crawlzip

import (
	"context"

	"github.com/meigma/crawlzip/internal/metrics"
	"github.com/meigma/crawlzip/internal/spool"
)

// exchangeState tracks one exchange from request to archived entry.
type exchangeState uint8

const (
	stateAwaitingHeaders exchangeState = iota
	stateHeadersReceived
	stateStreaming
	stateFinalizing
	stateClosed
	stateAborted
)

func (s exchangeState) String() string {
	switch s {
	case stateAwaitingHeaders:
		return "awaiting-headers"
	case stateHeadersReceived:
		return "headers-received"
	case stateStreaming:
		return "streaming"
	case stateFinalizing:
		return "finalizing"
	case stateClosed:
		return "closed"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// payload routes one exchange's response body into exactly one archive
// entry. The buffering mode is chosen once by begin and kept until the
// exchange ends.
type payload struct {
	rec      *Recorder
	ctx      context.Context
	protocol Protocol
	name     string

	state exchangeState
	mode  Mode
	entry *entryWriter // open entry: direct mode, or spooled mode while draining
	spool *spool.Spool // spooled mode until drained
	err   error        // first failure; returned by every later call
}

func newPayload(ctx context.Context, r *Recorder, protocol Protocol) payload {
	return payload{rec: r, ctx: ctx, protocol: protocol}
}

func (p *payload) violation(format string, args ...any) error {
	p.rec.metrics.Error(metrics.KindContract)
	return contractError(format, args...)
}

// begin selects the buffering mode. A known size opens the entry right away;
// an unknown size allocates a spool.
func (p *payload) begin(size uint64, known bool) error {
	if p.err != nil {
		return p.err
	}
	if p.name == "" {
		return p.violation("%s response before request", p.protocol)
	}
	if p.state != stateAwaitingHeaders {
		return p.violation("%s response started twice (state %s)", p.protocol, p.state)
	}
	p.state = stateHeadersReceived

	if known {
		e, err := p.rec.beginEntry(p.ctx, p.name, size, p.protocol, ModeDirect)
		if err != nil {
			return p.abort(err)
		}
		p.mode = ModeDirect
		p.entry = e
		return nil
	}

	s, err := spool.New(p.rec.cfg.spoolDir)
	if err != nil {
		p.rec.metrics.Error(metrics.KindSpoolIO)
		return p.abort(spoolError("create", err))
	}
	p.mode = ModeSpooled
	p.spool = s
	return nil
}

// write routes body bytes to the open entry or the spool.
func (p *payload) write(data []byte) error {
	if p.err != nil {
		return p.err
	}
	switch p.state {
	case stateHeadersReceived, stateStreaming:
	default:
		return p.violation("%s response data in state %s", p.protocol, p.state)
	}
	p.state = stateStreaming
	if len(data) == 0 {
		return nil
	}

	switch p.mode {
	case ModeDirect:
		if _, err := p.entry.Write(data); err != nil {
			return p.abort(err)
		}
	case ModeSpooled:
		n, err := p.spool.Write(data)
		p.rec.metrics.Spooled(n)
		if err != nil {
			p.rec.metrics.Error(metrics.KindSpoolIO)
			return p.abort(spoolError("append", err))
		}
	}
	return nil
}

// finish completes the entry. In spooled mode the spool is sealed, the entry
// is opened with the measured length and the spool is drained into it.
func (p *payload) finish() error {
	if p.err != nil {
		return p.err
	}
	switch p.state {
	case stateHeadersReceived, stateStreaming:
	default:
		return p.violation("%s response completed in state %s", p.protocol, p.state)
	}
	p.state = stateFinalizing

	if p.mode == ModeSpooled {
		if err := p.drain(); err != nil {
			return err
		}
	}
	p.entry.finish(false)
	p.entry = nil
	p.state = stateClosed
	return nil
}

func (p *payload) drain() error {
	size, err := p.spool.Seal()
	if err != nil {
		p.rec.metrics.Error(metrics.KindSpoolIO)
		return p.abort(spoolError("seal", err))
	}
	e, err := p.rec.beginEntry(p.ctx, p.name, size, p.protocol, ModeSpooled)
	if err != nil {
		return p.abort(err)
	}
	p.entry = e

	s := p.spool
	p.spool = nil
	defer s.Release() //nolint:errcheck // Drain releases on completion; this covers early exits
	for chunk, err := range s.Drain(p.rec.cfg.chunkSize) {
		if err != nil {
			p.rec.metrics.Error(metrics.KindSpoolIO)
			return p.abort(spoolError("drain", err))
		}
		if _, err := e.Write(chunk); err != nil {
			return p.abort(err)
		}
	}
	return nil
}

// abort ends the exchange after a failure. An open entry is left as written
// and the archive is handed on; the spool is discarded. err is returned by
// every later call.
func (p *payload) abort(err error) error {
	p.state = stateAborted
	p.err = err
	if p.entry != nil {
		p.entry.finish(true)
		p.entry = nil
	}
	if p.spool != nil {
		_ = p.spool.Release() //nolint:errcheck // best-effort cleanup
		p.spool = nil
	}
	p.rec.logger.Debug("exchange aborted", "entry", p.name, "protocol", p.protocol.String(), "error", err)
	return err
}

// close ends the exchange. An exchange whose response never completed is
// aborted: an open entry stays truncated and a spooled payload is dropped.
func (p *payload) close() error {
	switch p.state {
	case stateClosed, stateAborted:
		return nil
	case stateAwaitingHeaders:
		p.state = stateClosed
		return nil
	}
	p.rec.logger.Warn("exchange closed before its response completed",
		"entry", p.name, "protocol", p.protocol.String(), "mode", p.mode.String(), "state", p.state.String())
	p.state = stateAborted
	if p.entry != nil {
		p.entry.finish(true)
		p.entry = nil
	}
	if p.spool != nil {
		err := p.spool.Release()
		p.spool = nil
		if err != nil {
			return spoolError("release", err)
		}
	}
	return nil
}
