package crawlzip

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meigma/crawlzip/internal/testutil"
)

func newTestRecorder(t *testing.T, opts ...Option) (*Recorder, *testutil.MockSink) {
	t.Helper()
	sink := testutil.NewMockSink()
	rec, err := NewFromSink(sink, append([]Option{WithSpoolDir(t.TempDir())}, opts...)...)
	require.NoError(t, err)
	return rec, sink
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// lengthHeader returns response headers declaring n payload bytes, or no
// length at all when n is negative.
func lengthHeader(n int) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	if n >= 0 {
		h.Set("Content-Length", strconv.Itoa(n))
	}
	return h
}

// recordHTTP drives a complete HTTP exchange through a new session and
// closes it. It returns the first callback error.
func recordHTTP(ctx context.Context, rec *Recorder, u *url.URL, declared int, chunks ...string) error {
	sess := rec.NewSession(ctx)
	defer sess.Close() //nolint:errcheck // close after a failed callback is a no-op

	req := &Request{URL: u, Method: http.MethodGet}
	if err := sess.PreRequest(req); err != nil {
		return err
	}
	if err := sess.Request(req); err != nil {
		return err
	}
	resp := &Response{StatusCode: http.StatusOK, Header: lengthHeader(declared)}
	if err := sess.PreResponse(resp); err != nil {
		return err
	}
	for _, c := range chunks {
		if err := sess.ResponseData([]byte(c)); err != nil {
			return err
		}
	}
	if err := sess.Response(resp); err != nil {
		return err
	}
	return sess.Close()
}

// recordFTP drives a complete FTP transfer through a new session and closes
// it. size < 0 means the transfer size is unknown.
func recordFTP(ctx context.Context, rec *Recorder, u *url.URL, size int64, chunks ...string) error {
	sess := rec.NewSession(ctx)
	defer sess.Close() //nolint:errcheck // close after a failed callback is a no-op

	req := &Request{URL: u, Method: "RETR"}
	if err := sess.BeginControl(req, false); err != nil {
		return err
	}
	if err := sess.RequestControlData([]byte("RETR " + u.Path + "\r\n")); err != nil {
		return err
	}
	if err := sess.ResponseControlData([]byte("150 Opening data connection\r\n")); err != nil {
		return err
	}
	resp := &Response{StatusCode: 150, TransferSize: size}
	if err := sess.PreResponse(resp); err != nil {
		return err
	}
	for _, c := range chunks {
		if err := sess.ResponseData([]byte(c)); err != nil {
			return err
		}
	}
	if err := sess.Response(resp); err != nil {
		return err
	}
	if err := sess.EndControl(&Response{StatusCode: 226, Reply: "Transfer complete"}, false); err != nil {
		return err
	}
	return sess.Close()
}

// hookRecords collects every EntryRecord passed to the entry hook.
type hookRecords struct {
	records []EntryRecord
}

func (h *hookRecords) hook(r EntryRecord) {
	h.records = append(h.records, r)
}
