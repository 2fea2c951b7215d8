package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/meigma/crawlzip/internal/config"
)

type rootOptions struct {
	configFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "crawlzip",
		Short: "Record crawled HTTP traffic into a streaming archive",
		Long: `crawlzip fetches URLs and writes each response body into one zip or tar
archive, one entry per exchange, named after the request host and path.

Responses that declare their length stream straight into the archive;
others are spooled to a temporary file first.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newFetchCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// newLogger builds the slog logger described by cfg. verbose forces debug
// level.
func newLogger(w io.Writer, cfg config.LoggingConfig, verbose bool) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(w, hopts)), nil
}
