// Package fetch drives recorder sessions from net/http GET requests.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/url"
	"strconv"

	"github.com/meigma/crawlzip"
)

const (
	// DefaultBufferSize is the read size used to stream response bodies.
	DefaultBufferSize = 32 << 10
	// DefaultMaxRedirects is the number of redirects followed per Fetch.
	DefaultMaxRedirects = 10
)

// ErrTooManyRedirects is returned when a redirect chain exceeds the limit.
var ErrTooManyRedirects = errors.New("too many redirects")

// Fetcher records HTTP GET exchanges into a Recorder.
// It is safe for concurrent use.
type Fetcher struct {
	rec          *crawlzip.Recorder
	client       *nethttp.Client
	headers      nethttp.Header
	bufSize      int
	maxRedirects int
	logger       *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(f *Fetcher) {
		if headers == nil {
			return
		}
		f.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(f *Fetcher) {
		if f.headers == nil {
			f.headers = make(nethttp.Header)
		}
		f.headers.Set(key, value)
	}
}

// WithBufferSize sets the read size used to stream response bodies.
func WithBufferSize(n int) Option {
	return func(f *Fetcher) {
		f.bufSize = n
	}
}

// WithMaxRedirects sets how many redirects one Fetch follows. A redirect past
// the limit is still recorded, then Fetch fails with ErrTooManyRedirects.
func WithMaxRedirects(n int) Option {
	return func(f *Fetcher) {
		f.maxRedirects = n
	}
}

// WithLogger sets the logger for fetch operations.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher that records into rec.
//
// The client is copied and never follows redirects on its own: every hop of
// a redirect chain is recorded as its own exchange, named after the URL that
// produced it.
func New(rec *crawlzip.Recorder, opts ...Option) *Fetcher {
	f := &Fetcher{
		rec:          rec,
		client:       nethttp.DefaultClient,
		bufSize:      DefaultBufferSize,
		maxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = nethttp.DefaultClient
	}
	client := *f.client
	client.CheckRedirect = func(*nethttp.Request, []*nethttp.Request) error {
		return nethttp.ErrUseLastResponse
	}
	f.client = &client
	if f.bufSize <= 0 {
		f.bufSize = DefaultBufferSize
	}
	if f.maxRedirects < 0 {
		f.maxRedirects = 0
	}
	if f.logger == nil {
		f.logger = slog.New(slog.DiscardHandler)
	}
	return f
}

// Result summarizes a fetch. URL, StatusCode and Bytes describe the last
// exchange of the redirect chain.
type Result struct {
	URL        string
	StatusCode int
	Bytes      int64
	// Redirects is the number of redirects followed.
	Redirects int
}

// Fetch GETs rawURL and records each response body as one archive entry.
// Redirects are followed up to the configured limit, recording every hop.
// Non-2xx responses are recorded like any other.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	var res Result
	for hops := 0; ; hops++ {
		var next *url.URL
		res, next, err = f.fetchOne(ctx, u)
		res.Redirects = hops
		if err != nil || next == nil {
			return res, err
		}
		if hops == f.maxRedirects {
			return res, fmt.Errorf("fetch %s: %w (limit %d)", rawURL, ErrTooManyRedirects, f.maxRedirects)
		}
		f.logger.Debug("following redirect", "from", u.Redacted(), "to", next.Redacted(), "status", res.StatusCode)
		u = next
	}
}

// fetchOne records a single exchange for u. next is the redirect target when
// the response is a redirect with a usable Location.
func (f *Fetcher) fetchOne(ctx context.Context, u *url.URL) (res Result, next *url.URL, err error) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return res, nil, fmt.Errorf("fetch %q: unsupported scheme %q", u.Redacted(), u.Scheme)
	}
	res.URL = u.String()

	sess := f.rec.NewSession(ctx)
	defer func() {
		err = errors.Join(err, sess.Close())
	}()

	hreq, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, u.String(), nil)
	if err != nil {
		return res, nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range f.headers {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}

	req := &crawlzip.Request{URL: u, Method: hreq.Method, Header: hreq.Header}
	if err := sess.PreRequest(req); err != nil {
		return res, nil, err
	}
	resp, err := f.client.Do(hreq)
	if err != nil {
		return res, nil, fmt.Errorf("get %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()
	if err := sess.Request(req); err != nil {
		return res, nil, err
	}

	res.StatusCode = resp.StatusCode
	r := &crawlzip.Response{StatusCode: resp.StatusCode, Header: responseHeader(resp)}
	if err := sess.PreResponse(r); err != nil {
		return res, nil, err
	}

	buf := make([]byte, f.bufSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			res.Bytes += int64(n)
			if err := sess.ResponseData(buf[:n]); err != nil {
				return res, nil, err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return res, nil, fmt.Errorf("read body of %s: %w", u.Redacted(), rerr)
		}
	}
	if err := sess.Response(r); err != nil {
		return res, nil, err
	}

	f.logger.Debug("fetched", "url", u.Redacted(), "status", resp.StatusCode, "bytes", res.Bytes)
	return res, redirectTarget(resp), nil
}

// redirectTarget returns the resolved Location of a redirect response, or
// nil when resp is not a redirect or carries no usable Location.
func redirectTarget(resp *nethttp.Response) *url.URL {
	switch resp.StatusCode {
	case nethttp.StatusMovedPermanently, nethttp.StatusFound, nethttp.StatusSeeOther,
		nethttp.StatusTemporaryRedirect, nethttp.StatusPermanentRedirect:
	default:
		return nil
	}
	loc, err := resp.Location()
	if err != nil {
		return nil
	}
	return loc
}

// responseHeader returns the response fields with Content-Length describing
// the body as delivered. The transport drops the field when it decompresses
// the body, and sets ContentLength to -1 when the length is unknown.
func responseHeader(resp *nethttp.Response) nethttp.Header {
	h := resp.Header.Clone()
	if h == nil {
		h = make(nethttp.Header)
	}
	if resp.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	} else {
		h.Del("Content-Length")
	}
	return h
}
