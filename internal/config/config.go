// Package config loads the crawlzip command configuration.
//
// Configuration is read from a YAML file, completed with defaults,
// overridden by CRAWLZIP_* environment variables and validated:
//
//	output: crawl.zip      # default: crawl plus the archive extension
//	archive:
//	  format: zip          # zip or tar
//	  compression: deflate # none, deflate or zstd
//	spool:
//	  dir: /var/tmp
//	  chunk_size: 524288
//	fetch:
//	  concurrency: 8
//	  timeout: 30s
//	  user_agent: crawlzip
//	metrics:
//	  addr: 127.0.0.1:9090
//	logging:
//	  level: info
//	  format: text
package config

import "time"

// Config is the complete command configuration.
type Config struct {
	Output   string        `yaml:"output"`
	Manifest string        `yaml:"manifest"`
	Archive  ArchiveConfig `yaml:"archive"`
	Spool    SpoolConfig   `yaml:"spool"`
	Fetch    FetchConfig   `yaml:"fetch"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Logging  LoggingConfig `yaml:"logging"`
}

// ArchiveConfig selects the archive container.
type ArchiveConfig struct {
	Format      string `yaml:"format"`
	Compression string `yaml:"compression"`
}

// SpoolConfig controls temporary spooling of payloads of unknown length.
type SpoolConfig struct {
	Dir       string `yaml:"dir"`
	ChunkSize int    `yaml:"chunk_size"`
}

// FetchConfig controls the HTTP driver.
type FetchConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
