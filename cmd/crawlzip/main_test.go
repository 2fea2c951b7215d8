package main

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/meigma/crawlzip/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/known", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		_, _ = w.Write([]byte("known length"))
	})
	mux.HandleFunc("/chunked", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		_, _ = w.Write([]byte("chunk one,"))
		w.(nethttp.Flusher).Flush()
		_, _ = w.Write([]byte("chunk two"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "crawlzip "+Version)
	assert.Contains(t, out, "Go Version:")
}

func TestFetchTarZstd(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	dir := t.TempDir()
	output := filepath.Join(dir, "crawl.tar.zst")
	manifestPath := filepath.Join(dir, "entries.jsonl")

	out, err := execute(t, "fetch",
		server.URL+"/known", server.URL+"/chunked",
		"-o", output,
		"--format", "tar",
		"--compression", "zstd",
		"--concurrency", "2",
		"--manifest", manifestPath,
		"--spool-dir", dir,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "recorded 2 entries")
	assert.Contains(t, out, "(0 incomplete, 0 failed)")

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	got := map[string]string{}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		got[filepath.Base(hdr.Name)] = string(data)
	}
	assert.Equal(t, map[string]string{"known": "known length", "chunked": "chunk one,chunk two"}, got)

	mf, err := os.Open(manifestPath)
	require.NoError(t, err)
	defer mf.Close()
	modes := map[string]string{}
	sc := bufio.NewScanner(mf)
	for sc.Scan() {
		var rec struct {
			Name string `json:"name"`
			Mode string `json:"mode"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		modes[filepath.Base(rec.Name)] = rec.Mode
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, map[string]string{"known": "direct", "chunked": "spooled"}, modes)
}

func TestFetchFailedURLIsSkipped(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	dead := httptest.NewServer(nethttp.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	input := filepath.Join(t.TempDir(), "urls.txt")
	body := "# seeds\n" + server.URL + "/known\n\n" + deadURL + "/gone\n"
	require.NoError(t, os.WriteFile(input, []byte(body), 0o600))

	output := filepath.Join(t.TempDir(), "crawl.zip")
	out, err := execute(t, "fetch", "--input", input, "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, "recorded 1 entries")
	assert.Contains(t, out, "(0 incomplete, 1 failed)")

	info, err := os.Stat(output)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestFetchTruncatedBodyIsIncomplete(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	short := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("short"))
	}))
	t.Cleanup(short.Close)

	output := filepath.Join(t.TempDir(), "crawl.zip")
	out, err := execute(t, "fetch", server.URL+"/known", short.URL+"/cut", "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, "recorded 1 entries")
	assert.Contains(t, out, "(1 incomplete, 1 failed)")
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "no urls", args: []string{"fetch", "-o", "unused.zip"}},
		{name: "bad format", args: []string{"fetch", "--format", "rar", "http://example.com/"}},
		{name: "bad concurrency", args: []string{"fetch", "--concurrency", "0", "http://example.com/"}},
		{name: "missing input", args: []string{"fetch", "--input", "/nonexistent/urls.txt"}},
		{name: "missing config", args: []string{"--config", "/nonexistent/crawlzip.yaml", "fetch", "http://example.com/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := execute(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestDefaultOutputFollowsFormat(t *testing.T) {
	t.Parallel()

	cmd := newFetchCmd(&rootOptions{})
	require.NoError(t, cmd.ParseFlags([]string{"--format", "tar"}))
	cfg, err := loadFetchConfig(cmd, &rootOptions{}, &fetchOptions{format: "tar"})
	require.NoError(t, err)
	assert.Equal(t, "crawl.tar.gz", cfg.Output)
}

func TestConfiguredOutputIsKept(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "crawlzip.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: crawl.zip\narchive:\n  format: tar\n"), 0o600))

	root := &rootOptions{configFile: path}
	cmd := newFetchCmd(root)
	require.NoError(t, cmd.ParseFlags(nil))
	cfg, err := loadFetchConfig(cmd, root, &fetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "crawl.zip", cfg.Output)
	assert.Equal(t, "tar", cfg.Archive.Format)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := newLogger(&buf, loggingConfig("warn", "json"), false)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger, err = newLogger(&buf, loggingConfig("warn", "text"), true)
	require.NoError(t, err)
	logger.Debug("verbose")
	assert.Contains(t, buf.String(), "msg=verbose")

	_, err = newLogger(&buf, loggingConfig("loud", "text"), false)
	require.Error(t, err)
}

func loggingConfig(level, format string) config.LoggingConfig {
	return config.LoggingConfig{Level: level, Format: format}
}
