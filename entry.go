package crawlzip

import (
	"io"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/crawlzip/internal/ioutil"
	"github.com/meigma/crawlzip/internal/metrics"
)

// entryWriter writes the payload of one open entry. It holds the recorder's
// archive lock from creation until finish.
type entryWriter struct {
	rec      *Recorder
	record   EntryRecord
	cw       ioutil.CountingWriter
	digester digest.Digester
	started  time.Time
	done     bool
}

func newEntryWriter(r *Recorder, record EntryRecord) *entryWriter {
	e := &entryWriter{
		rec:      r,
		record:   record,
		digester: digest.Canonical.Digester(),
		started:  time.Now(),
	}
	e.cw.W = io.MultiWriter(r.sink, e.digester.Hash())
	return e
}

// Write implements io.Writer.
func (e *entryWriter) Write(p []byte) (int, error) {
	n, err := e.cw.Write(p)
	if err != nil {
		e.rec.metrics.Error(metrics.KindSinkWrite)
		return n, sinkWriteError("write entry", e.record.Name, err)
	}
	return n, nil
}

// finish reports the entry and hands the archive to the next writer.
// aborted marks an entry cut short by an error or an early close.
func (e *entryWriter) finish(aborted bool) EntryRecord {
	if e.done {
		return e.record
	}
	e.done = true
	defer e.rec.sem.Release(1)

	e.record.WrittenSize = e.cw.N
	e.record.Digest = e.digester.Digest()
	e.record.Duration = time.Since(e.started)
	e.record.Aborted = aborted

	r := e.rec
	rec := e.record
	r.entries.Add(1)
	if aborted {
		r.aborted.Add(1)
	}
	r.metrics.EntryFinished(rec.Protocol.String(), rec.Mode.String(), rec.WrittenSize, rec.SizeMismatch())

	switch {
	case aborted:
		r.logger.Warn("entry left incomplete", "entry", rec.Name, "declared_size", rec.DeclaredSize, "written_size", rec.WrittenSize)
	case rec.SizeMismatch():
		r.logger.Warn("entry size differs from declared size", "entry", rec.Name, "declared_size", rec.DeclaredSize, "written_size", rec.WrittenSize)
	default:
		r.logger.Debug("entry recorded", "entry", rec.Name, "size", rec.WrittenSize, "mode", rec.Mode.String(), "digest", rec.Digest.String())
	}

	if r.cfg.hook != nil {
		r.cfg.hook(rec)
	}
	return rec
}
