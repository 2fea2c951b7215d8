package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	nethttp "net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/crawlzip"
	"github.com/meigma/crawlzip/archive"
	"github.com/meigma/crawlzip/internal/config"
	"github.com/meigma/crawlzip/internal/fetch"
	"github.com/meigma/crawlzip/internal/metrics"
)

type fetchOptions struct {
	output      string
	input       string
	format      string
	compression string
	concurrency int
	manifest    string
	metricsAddr string
	spoolDir    string
}

func newFetchCmd(root *rootOptions) *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch [URL...]",
		Short: "Fetch URLs and record their responses into an archive",
		Long: `Fetch issues a GET for every URL given as an argument or listed in the
--input file (one per line, blank lines and lines starting with # ignored)
and records each response body as one archive entry.

A failed URL is logged and skipped; the archive is still completed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFetchConfig(cmd, root, opts)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.Logging, root.verbose)
			if err != nil {
				return err
			}
			urls, err := collectURLs(args, opts.input)
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				return errors.New("no URLs to fetch")
			}
			return runFetch(cmd.Context(), cmd.OutOrStdout(), cfg, logger, urls)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "archive path (default crawl.zip, or crawl.tar[.gz|.zst] for tar)")
	f.StringVarP(&opts.input, "input", "i", "", "file with one URL per line")
	f.StringVar(&opts.format, "format", "", "archive format: zip or tar")
	f.StringVar(&opts.compression, "compression", "", "archive compression: none, deflate or zstd")
	f.IntVarP(&opts.concurrency, "concurrency", "j", 0, "number of concurrent fetches")
	f.StringVar(&opts.manifest, "manifest", "", "write a JSON lines record of every entry to this path")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.StringVar(&opts.spoolDir, "spool-dir", "", "directory for temporary spool files")
	return cmd
}

// loadFetchConfig loads the config file and applies flags that were set
// explicitly on the command line.
func loadFetchConfig(cmd *cobra.Command, root *rootOptions, opts *fetchOptions) (*config.Config, error) {
	cfg, err := config.Load(root.configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output = opts.output
	}
	if flags.Changed("format") {
		cfg.Archive.Format = opts.format
	}
	if flags.Changed("compression") {
		cfg.Archive.Compression = opts.compression
	}
	if flags.Changed("concurrency") {
		cfg.Fetch.Concurrency = opts.concurrency
	}
	if flags.Changed("manifest") {
		cfg.Manifest = opts.manifest
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if flags.Changed("spool-dir") {
		cfg.Spool.Dir = opts.spoolDir
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	cfg.Output = cfg.OutputPath()
	return cfg, nil
}

// collectURLs merges args with the lines of the input file, if any.
func collectURLs(args []string, input string) ([]string, error) {
	urls := append([]string(nil), args...)
	if input == "" {
		return urls, nil
	}
	f, err := os.Open(input) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return urls, nil
}

func runFetch(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger, urls []string) (err error) {
	format, err := archive.ParseFormat(cfg.Archive.Format)
	if err != nil {
		return err
	}
	comp, err := archive.ParseCompression(cfg.Archive.Compression)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []crawlzip.Option{
		crawlzip.WithLogger(logger),
		crawlzip.WithFormat(format),
		crawlzip.WithCompression(comp),
		crawlzip.WithSpoolDir(cfg.Spool.Dir),
		crawlzip.WithChunkSize(cfg.Spool.ChunkSize),
		crawlzip.WithMetrics(reg),
	}

	if cfg.Manifest != "" {
		m, merr := createManifest(cfg.Manifest, logger)
		if merr != nil {
			return merr
		}
		defer func() {
			err = errors.Join(err, m.Close())
		}()
		opts = append(opts, crawlzip.WithEntryHook(m.Write))
	}

	if cfg.Metrics.Addr != "" {
		stop, err := serveMetrics(cfg.Metrics.Addr, reg, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	rec, err := crawlzip.Create(cfg.Output, opts...)
	if err != nil {
		return err
	}

	transport := nethttp.DefaultTransport.(*nethttp.Transport).Clone() //nolint:errcheck // DefaultTransport is a *Transport
	defer transport.CloseIdleConnections()
	fetcher := fetch.New(rec,
		fetch.WithClient(&nethttp.Client{Transport: transport, Timeout: cfg.Fetch.Timeout}),
		fetch.WithHeader("User-Agent", cfg.Fetch.UserAgent),
		fetch.WithLogger(logger),
	)

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(cfg.Fetch.Concurrency)
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := fetcher.Fetch(ctx, u)
			if err != nil {
				failed.Add(1)
				logger.Warn("fetch failed", "url", u, "error", err)
				return nil
			}
			logger.Info("fetched", "url", res.URL, "status", res.StatusCode, "bytes", res.Bytes, "redirects", res.Redirects)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	if err := rec.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "recorded %d entries into %s (%d incomplete, %d failed)\n",
		rec.Entries()-rec.Aborted(), cfg.Output, rec.Aborted(), failed.Load())
	return ctx.Err()
}

// manifest writes one JSON line per finalized entry. Write is called by the
// recorder with archive writes serialized, so it needs no locking.
type manifest struct {
	f      *os.File
	bw     *bufio.Writer
	enc    *json.Encoder
	logger *slog.Logger
	err    error
}

func createManifest(path string, logger *slog.Logger) (*manifest, error) {
	f, err := os.Create(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("create manifest: %w", err)
	}
	bw := bufio.NewWriter(f)
	return &manifest{f: f, bw: bw, enc: json.NewEncoder(bw), logger: logger}, nil
}

func (m *manifest) Write(rec crawlzip.EntryRecord) {
	if m.err != nil {
		return
	}
	if err := m.enc.Encode(rec); err != nil {
		m.err = err
		m.logger.Error("writing manifest failed", "error", err)
	}
}

func (m *manifest) Close() error {
	err := errors.Join(m.err, m.bw.Flush(), m.f.Close())
	if err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	return nil
}

// serveMetrics serves reg on addr until the returned stop function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := nethttp.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &nethttp.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("serving metrics", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx) //nolint:errcheck // best-effort shutdown
		<-done
	}, nil
}
