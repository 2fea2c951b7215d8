// Command crawlzip fetches URLs and records every response body into a
// single archive.
//
// Usage:
//
//	# Record two pages into crawl.zip
//	crawlzip fetch https://example.com/ https://example.com/about
//
//	# Record a URL list into a zstd-compressed tarball with 16 workers
//	crawlzip fetch --input urls.txt --format tar --compression zstd -o crawl.tar.zst --concurrency 16
//
//	# Write a JSON lines manifest and expose Prometheus metrics while running
//	crawlzip fetch --input urls.txt --manifest entries.jsonl --metrics-addr 127.0.0.1:9090
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
