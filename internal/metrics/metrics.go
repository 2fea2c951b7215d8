// Package metrics exposes recorder activity as Prometheus metrics.
//
// A nil *Collector is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crawlzip"

// Error kinds used as the "kind" label of the errors counter.
const (
	KindSinkWrite = "sink_write"
	KindSpoolIO   = "spool_io"
	KindContract  = "contract"
)

// Collector holds the recorder metrics.
type Collector struct {
	entries        *prometheus.CounterVec
	entryBytes     *prometheus.CounterVec
	spooledBytes   prometheus.Counter
	errors         *prometheus.CounterVec
	sizeMismatches prometheus.Counter
}

// NewCollector creates the recorder metrics and registers them with reg.
// A nil reg leaves the metrics unregistered, which is useful in tests.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Archive entries finalized, by protocol and buffering mode.",
		}, []string{"protocol", "mode"}),
		entryBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entry_bytes_total",
			Help:      "Payload bytes written into archive entries, by protocol.",
		}, []string{"protocol"}),
		spooledBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spooled_bytes_total",
			Help:      "Payload bytes buffered in temporary spools before archiving.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Recording errors, by kind.",
		}, []string{"kind"}),
		sizeMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "size_mismatches_total",
			Help:      "Entries whose written size differed from the declared size.",
		}),
	}
	if reg == nil {
		return c, nil
	}
	for _, col := range []prometheus.Collector{c.entries, c.entryBytes, c.spooledBytes, c.errors, c.sizeMismatches} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// EntryFinished records one finalized entry of n bytes.
func (c *Collector) EntryFinished(protocol, mode string, n uint64, mismatch bool) {
	if c == nil {
		return
	}
	c.entries.WithLabelValues(protocol, mode).Inc()
	c.entryBytes.WithLabelValues(protocol).Add(float64(n))
	if mismatch {
		c.sizeMismatches.Inc()
	}
}

// Spooled records n bytes written to a spool.
func (c *Collector) Spooled(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.spooledBytes.Add(float64(n))
}

// Error records one error of the given kind.
func (c *Collector) Error(kind string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(kind).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus exposition
// format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
