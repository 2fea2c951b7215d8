package config

import (
	"time"

	"github.com/meigma/crawlzip/archive"
	"github.com/meigma/crawlzip/internal/spool"
)

// Default values for configuration fields.
const (
	DefaultOutputBase  = "crawl"
	DefaultFormat      = "zip"
	DefaultCompression = "deflate"
	DefaultChunkSize   = spool.DefaultChunkSize
	DefaultConcurrency = 4
	DefaultTimeout     = 30 * time.Second
	DefaultUserAgent   = "crawlzip"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Archive.Format == "" {
		cfg.Archive.Format = DefaultFormat
	}
	if cfg.Archive.Compression == "" {
		cfg.Archive.Compression = DefaultCompression
	}
	if cfg.Spool.ChunkSize == 0 {
		cfg.Spool.ChunkSize = DefaultChunkSize
	}
	if cfg.Fetch.Concurrency == 0 {
		cfg.Fetch.Concurrency = DefaultConcurrency
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = DefaultTimeout
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = DefaultUserAgent
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// OutputPath returns Output, or DefaultOutputBase with the extension of the
// configured archive when no output path was set. It returns "" when Output
// is unset and the archive settings are invalid.
func (c *Config) OutputPath() string {
	if c.Output != "" {
		return c.Output
	}
	format, err := archive.ParseFormat(c.Archive.Format)
	if err != nil {
		return ""
	}
	comp, err := archive.ParseCompression(c.Archive.Compression)
	if err != nil {
		return ""
	}
	return DefaultOutputBase + format.Extension(comp)
}
