package crawlzip

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/crawlzip/internal/testutil"
)

func TestHTTPDeclaredLength(t *testing.T) {
	t.Parallel()

	var got hookRecords
	rec, sink := newTestRecorder(t, WithEntryHook(got.hook))
	u := mustURL(t, "http://Example.com/a/b")

	require.NoError(t, recordHTTP(context.Background(), rec, u, 11, "hello world"))

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "example.com/a/b", entries[0].Name)
	assert.Equal(t, uint64(11), entries[0].Size)
	assert.Equal(t, "hello world", string(entries[0].Data))

	require.Len(t, got.records, 1)
	r := got.records[0]
	assert.Equal(t, ModeDirect, r.Mode)
	assert.Equal(t, ProtocolHTTP, r.Protocol)
	assert.Equal(t, uint64(11), r.WrittenSize)
	assert.False(t, r.Aborted)
	assert.False(t, r.SizeMismatch())
	assert.Equal(t, uint64(1), rec.Entries())
}

func TestHTTPUnknownLengthIsSpooled(t *testing.T) {
	t.Parallel()

	var got hookRecords
	rec, sink := newTestRecorder(t, WithEntryHook(got.hook))
	u := mustURL(t, "http://example.com/stream")

	sess := rec.NewSession(context.Background())
	req := &Request{URL: u}
	require.NoError(t, sess.PreRequest(req))
	require.NoError(t, sess.Request(req))
	resp := &Response{StatusCode: http.StatusOK, Header: lengthHeader(-1)}
	require.NoError(t, sess.PreResponse(resp))
	for _, c := range []string{"abcd", "efgh", "ijk"} {
		require.NoError(t, sess.ResponseData([]byte(c)))
		assert.Empty(t, sink.Events(), "no entry may open before the response completes")
	}
	require.NoError(t, sess.Response(resp))
	require.NoError(t, sess.Close())

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "example.com/stream", entries[0].Name)
	assert.Equal(t, uint64(11), entries[0].Size)
	assert.Equal(t, "abcdefghijk", string(entries[0].Data))

	require.Len(t, got.records, 1)
	assert.Equal(t, ModeSpooled, got.records[0].Mode)
}

func TestSpooledDrainChunks(t *testing.T) {
	t.Parallel()

	rec, sink := newTestRecorder(t, WithChunkSize(3))
	u := mustURL(t, "http://example.com/chunks")
	require.NoError(t, recordHTTP(context.Background(), rec, u, -1, "hello", " ", "world"))

	var sizes []int
	for _, ev := range sink.Events() {
		if ev.Op == testutil.OpWrite {
			sizes = append(sizes, len(ev.Data))
		}
	}
	assert.Equal(t, []int{3, 3, 3, 2}, sizes)
	assert.Equal(t, "hello world", string(sink.Entries()[0].Data))
}

func TestSpoolFilesRemoved(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rec, _ := newTestRecorder(t, WithSpoolDir(dir))

	require.NoError(t, recordHTTP(context.Background(), rec, mustURL(t, "http://example.com/done"), -1, "payload"))

	// An exchange closed mid-stream drops its spool too.
	sess := rec.NewSession(context.Background())
	require.NoError(t, sess.PreRequest(&Request{URL: mustURL(t, "http://example.com/partial")}))
	require.NoError(t, sess.PreResponse(&Response{Header: lengthHeader(-1)}))
	require.NoError(t, sess.ResponseData([]byte("part")))
	require.NoError(t, sess.Close())

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestHTTPHeaderBytesDiscarded(t *testing.T) {
	t.Parallel()

	rec, sink := newTestRecorder(t)
	sess := rec.NewSession(context.Background())
	req := &Request{URL: mustURL(t, "http://example.com/")}
	require.NoError(t, sess.PreRequest(req))
	require.NoError(t, sess.Request(req))
	require.NoError(t, sess.RequestData([]byte("GET / HTTP/1.1\r\n\r\n")))
	require.NoError(t, sess.ResponseData([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\n")))

	resp := &Response{StatusCode: http.StatusOK, Header: lengthHeader(2)}
	require.NoError(t, sess.PreResponse(resp))
	require.NoError(t, sess.ResponseData([]byte("ok")))
	require.NoError(t, sess.Response(resp))
	require.NoError(t, sess.Close())

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "example.com/_index", entries[0].Name)
	assert.Equal(t, "ok", string(entries[0].Data))
}

func TestHTTPZeroContentLength(t *testing.T) {
	t.Parallel()

	var got hookRecords
	rec, sink := newTestRecorder(t, WithEntryHook(got.hook))
	require.NoError(t, recordHTTP(context.Background(), rec, mustURL(t, "http://example.com/empty"), 0))

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(0), entries[0].Size)
	assert.Empty(t, entries[0].Data)
	require.Len(t, got.records, 1)
	assert.Equal(t, ModeDirect, got.records[0].Mode)
}

func TestHTTPInvalidContentLengthIsSpooled(t *testing.T) {
	t.Parallel()

	var got hookRecords
	rec, sink := newTestRecorder(t, WithEntryHook(got.hook))
	sess := rec.NewSession(context.Background())
	require.NoError(t, sess.PreRequest(&Request{URL: mustURL(t, "http://example.com/bad")}))

	h := http.Header{}
	h.Set("Content-Length", "-5")
	resp := &Response{Header: h}
	require.NoError(t, sess.PreResponse(resp))
	require.NoError(t, sess.ResponseData([]byte("abc")))
	require.NoError(t, sess.Response(resp))
	require.NoError(t, sess.Close())

	require.Len(t, got.records, 1)
	assert.Equal(t, ModeSpooled, got.records[0].Mode)
	assert.Equal(t, uint64(3), sink.Entries()[0].Size)
}

func TestDeclaredLengthMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		declared int
		chunks   []string
	}{
		{name: "short body", declared: 10, chunks: []string{"abc"}},
		{name: "long body", declared: 2, chunks: []string{"abc", "def"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got hookRecords
			rec, sink := newTestRecorder(t, WithEntryHook(got.hook))
			require.NoError(t, recordHTTP(context.Background(), rec, mustURL(t, "http://example.com/x"), tt.declared, tt.chunks...))

			require.Len(t, got.records, 1)
			r := got.records[0]
			assert.True(t, r.SizeMismatch())
			assert.False(t, r.Aborted)
			assert.Equal(t, uint64(tt.declared), r.DeclaredSize)
			assert.Equal(t, uint64(tt.declared), sink.Entries()[0].Size)
		})
	}
}

func TestFTPKnownSize(t *testing.T) {
	t.Parallel()

	var got hookRecords
	rec, sink := newTestRecorder(t, WithEntryHook(got.hook))
	require.NoError(t, recordFTP(context.Background(), rec, mustURL(t, "ftp://example.com/pub/readme.txt"), 5, "hel", "lo"))

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "example.com/pub/readme.txt", entries[0].Name)
	assert.Equal(t, uint64(5), entries[0].Size)
	assert.Equal(t, "hello", string(entries[0].Data))
	require.Len(t, got.records, 1)
	assert.Equal(t, ProtocolFTP, got.records[0].Protocol)
	assert.Equal(t, ModeDirect, got.records[0].Mode)
}

func TestFTPZeroLengthDirectory(t *testing.T) {
	t.Parallel()

	rec, sink := newTestRecorder(t)
	require.NoError(t, recordFTP(context.Background(), rec, mustURL(t, "ftp://example.com/pub/"), 0))

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "example.com/pub/_index", entries[0].Name)
	assert.Equal(t, uint64(0), entries[0].Size)
	assert.Empty(t, entries[0].Data)
}

func TestFTPUnknownSizeIsSpooled(t *testing.T) {
	t.Parallel()

	var got hookRecords
	rec, sink := newTestRecorder(t, WithEntryHook(got.hook))
	require.NoError(t, recordFTP(context.Background(), rec, mustURL(t, "ftp://example.com/pub/list"), -1, "a\n", "b\n"))

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(4), entries[0].Size)
	assert.Equal(t, "a\nb\n", string(entries[0].Data))
	require.Len(t, got.records, 1)
	assert.Equal(t, ModeSpooled, got.records[0].Mode)
}

func TestFTPReusedConnection(t *testing.T) {
	t.Parallel()

	rec, sink := newTestRecorder(t)
	sess := rec.NewSession(context.Background())
	require.NoError(t, sess.BeginControl(&Request{URL: mustURL(t, "ftp://example.com/a")}, true))
	require.NoError(t, sess.PreResponse(&Response{TransferSize: 1}))
	require.NoError(t, sess.ResponseData([]byte("x")))
	require.NoError(t, sess.Response(&Response{}))
	require.NoError(t, sess.EndControl(nil, true))
	require.NoError(t, sess.Close())

	require.Len(t, sink.Entries(), 1)
	assert.Equal(t, "example.com/a", sink.Entries()[0].Name)
}

func TestUnboundSessionClose(t *testing.T) {
	t.Parallel()

	rec, sink := newTestRecorder(t)
	sess := rec.NewSession(context.Background())
	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	assert.Empty(t, sink.Events())
	assert.Equal(t, uint64(0), rec.Entries())
}

func TestSessionClosedBeforeResponse(t *testing.T) {
	t.Parallel()

	rec, sink := newTestRecorder(t)
	sess := rec.NewSession(context.Background())
	require.NoError(t, sess.PreRequest(&Request{URL: mustURL(t, "http://example.com/never")}))
	require.NoError(t, sess.Close())
	assert.Empty(t, sink.Events())
}

func TestSessionClosedMidStream(t *testing.T) {
	t.Parallel()

	var got hookRecords
	rec, sink := newTestRecorder(t, WithEntryHook(got.hook))
	u := mustURL(t, "http://example.com/cut")

	sess := rec.NewSession(context.Background())
	require.NoError(t, sess.PreRequest(&Request{URL: u}))
	require.NoError(t, sess.PreResponse(&Response{Header: lengthHeader(11)}))
	require.NoError(t, sess.ResponseData([]byte("hello")))
	require.NoError(t, sess.Close())

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(11), entries[0].Size)
	assert.Equal(t, "hello", string(entries[0].Data))
	require.Len(t, got.records, 1)
	assert.True(t, got.records[0].Aborted)
	assert.Equal(t, uint64(1), rec.Aborted())

	// The archive was handed on.
	require.NoError(t, recordHTTP(context.Background(), rec, mustURL(t, "http://example.com/next"), 2, "ok"))
	assert.Len(t, sink.Entries(), 2)
	assert.Equal(t, uint64(2), rec.Entries())
	assert.Equal(t, uint64(1), rec.Aborted())
}

func TestSinkWriteFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	var got hookRecords
	rec, sink := newTestRecorder(t, WithEntryHook(got.hook))
	sink.FailWrite = func(name string, _ []byte) error {
		if name == "example.com/fail" {
			return boom
		}
		return nil
	}

	sess := rec.NewSession(context.Background())
	require.NoError(t, sess.PreRequest(&Request{URL: mustURL(t, "http://example.com/fail")}))
	resp := &Response{Header: lengthHeader(11)}
	require.NoError(t, sess.PreResponse(resp))

	err := sess.ResponseData([]byte("hello"))
	require.ErrorIs(t, err, ErrSinkWrite)
	require.ErrorIs(t, err, boom)

	// The failure is sticky and never retried.
	assert.ErrorIs(t, sess.ResponseData([]byte(" world")), boom)
	assert.ErrorIs(t, sess.Response(resp), boom)
	require.NoError(t, sess.Close())

	writes := 0
	for _, ev := range sink.Events() {
		if ev.Op == testutil.OpWrite {
			writes++
		}
	}
	assert.Zero(t, writes)
	require.Len(t, got.records, 1)
	assert.True(t, got.records[0].Aborted)

	require.NoError(t, recordHTTP(context.Background(), rec, mustURL(t, "http://example.com/ok"), 2, "ok"))
	entries := sink.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "ok", string(entries[1].Data))
}

func TestSinkStartFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("header rejected")
	rec, sink := newTestRecorder(t)
	sink.FailStart = func(name string) error {
		if name == "example.com/spooled" {
			return boom
		}
		return nil
	}

	err := recordHTTP(context.Background(), rec, mustURL(t, "http://example.com/spooled"), -1, "data")
	require.ErrorIs(t, err, ErrSinkWrite)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, sink.Entries())

	require.NoError(t, recordHTTP(context.Background(), rec, mustURL(t, "http://example.com/after"), -1, "data"))
	assert.Len(t, sink.Entries(), 1)
}

func TestContractViolations(t *testing.T) {
	t.Parallel()

	u := "http://example.com/x"
	tests := []struct {
		name string
		run  func(t *testing.T, s *Session) error
	}{
		{
			name: "response on unbound session",
			run: func(_ *testing.T, s *Session) error {
				return s.PreResponse(&Response{Header: lengthHeader(1)})
			},
		},
		{
			name: "response data on unbound session",
			run: func(_ *testing.T, s *Session) error {
				return s.ResponseData([]byte("x"))
			},
		},
		{
			name: "ftp callback on http session",
			run: func(t *testing.T, s *Session) error {
				require.NoError(t, s.PreRequest(&Request{URL: mustURL(t, u)}))
				return s.BeginControl(&Request{URL: mustURL(t, u)}, false)
			},
		},
		{
			name: "control data on unbound session",
			run: func(_ *testing.T, s *Session) error {
				return s.ResponseControlData([]byte("220 ready\r\n"))
			},
		},
		{
			name: "end control on http session",
			run: func(t *testing.T, s *Session) error {
				require.NoError(t, s.PreRequest(&Request{URL: mustURL(t, u)}))
				return s.EndControl(nil, false)
			},
		},
		{
			name: "http callback on ftp session",
			run: func(t *testing.T, s *Session) error {
				require.NoError(t, s.BeginControl(&Request{URL: mustURL(t, "ftp://example.com/x")}, false))
				return s.RequestData([]byte("GET"))
			},
		},
		{
			name: "response before request target",
			run: func(t *testing.T, s *Session) error {
				require.NoError(t, s.Request(&Request{URL: mustURL(t, u)}))
				return s.PreResponse(&Response{Header: lengthHeader(-1)})
			},
		},
		{
			name: "request without url",
			run: func(_ *testing.T, s *Session) error {
				return s.PreRequest(&Request{})
			},
		},
		{
			name: "response started twice",
			run: func(t *testing.T, s *Session) error {
				require.NoError(t, s.PreRequest(&Request{URL: mustURL(t, u)}))
				require.NoError(t, s.PreResponse(&Response{Header: lengthHeader(-1)}))
				return s.PreResponse(&Response{Header: lengthHeader(-1)})
			},
		},
		{
			name: "response completed before it started",
			run: func(t *testing.T, s *Session) error {
				require.NoError(t, s.PreRequest(&Request{URL: mustURL(t, u)}))
				return s.Response(&Response{})
			},
		},
		{
			name: "data after response completed",
			run: func(t *testing.T, s *Session) error {
				require.NoError(t, s.PreRequest(&Request{URL: mustURL(t, u)}))
				require.NoError(t, s.PreResponse(&Response{Header: lengthHeader(1)}))
				require.NoError(t, s.ResponseData([]byte("x")))
				require.NoError(t, s.Response(&Response{}))
				return s.ResponseData([]byte("y"))
			},
		},
		{
			name: "ftp data before transfer size",
			run: func(t *testing.T, s *Session) error {
				require.NoError(t, s.BeginControl(&Request{URL: mustURL(t, "ftp://example.com/x")}, false))
				return s.ResponseData([]byte("x"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec, _ := newTestRecorder(t)
			sess := rec.NewSession(context.Background())
			err := tt.run(t, sess)
			require.ErrorIs(t, err, ErrContractViolation)
			require.NoError(t, sess.Close())
		})
	}
}

func TestEndControlDoesNotBind(t *testing.T) {
	t.Parallel()

	rec, sink := newTestRecorder(t)
	sess := rec.NewSession(context.Background())
	require.NoError(t, sess.EndControl(&Response{StatusCode: 421}, true))
	assert.Equal(t, kindUnbound, sess.kind)
	require.ErrorIs(t, sess.RequestControlData([]byte("USER anonymous\r\n")), ErrContractViolation)
	assert.Equal(t, kindUnbound, sess.kind)

	// The session is still free to bind to HTTP.
	require.NoError(t, sess.PreRequest(&Request{URL: mustURL(t, "http://example.com/late")}))
	require.NoError(t, sess.PreResponse(&Response{Header: lengthHeader(2)}))
	require.NoError(t, sess.ResponseData([]byte("ok")))
	require.NoError(t, sess.Response(&Response{}))
	require.NoError(t, sess.Close())

	require.Len(t, sink.Entries(), 1)
	assert.Equal(t, "example.com/late", sink.Entries()[0].Name)
}

func TestEntryNameDeterministic(t *testing.T) {
	t.Parallel()

	rec, sink := newTestRecorder(t)
	u := mustURL(t, "http://example.com/a/b/")
	require.NoError(t, recordHTTP(context.Background(), rec, u, 1, "x"))
	require.NoError(t, recordHTTP(context.Background(), rec, u, 1, "y"))

	entries := sink.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "example.com/a/b/_index", entries[0].Name)
	assert.Equal(t, entries[0].Name, entries[1].Name)
}

func TestSessionStates(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unbound", kindUnbound.String())
	assert.Equal(t, "http", kindHTTP.String())
	assert.Equal(t, "ftp", kindFTP.String())
	for s, want := range map[exchangeState]string{
		stateAwaitingHeaders: "awaiting-headers",
		stateHeadersReceived: "headers-received",
		stateStreaming:       "streaming",
		stateFinalizing:      "finalizing",
		stateClosed:          "closed",
		stateAborted:         "aborted",
		exchangeState(99):    "unknown",
	} {
		assert.Equal(t, want, s.String())
	}
}
