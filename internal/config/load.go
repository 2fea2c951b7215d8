package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CRAWLZIP_"

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result. An empty path starts from defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the operator
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := Parse(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg, os.LookupEnv)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML into cfg. Unknown fields are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides cfg from CRAWLZIP_* variables found by lookup.
// Values that fail to parse are ignored and left to Validate.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("OUTPUT", &cfg.Output)
	str("MANIFEST", &cfg.Manifest)
	str("ARCHIVE_FORMAT", &cfg.Archive.Format)
	str("ARCHIVE_COMPRESSION", &cfg.Archive.Compression)
	str("SPOOL_DIR", &cfg.Spool.Dir)
	num("SPOOL_CHUNK_SIZE", &cfg.Spool.ChunkSize)
	num("FETCH_CONCURRENCY", &cfg.Fetch.Concurrency)
	if v, ok := lookup(EnvPrefix + "FETCH_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Fetch.Timeout = d
		}
	}
	str("FETCH_USER_AGENT", &cfg.Fetch.UserAgent)
	str("METRICS_ADDR", &cfg.Metrics.Addr)
	str("LOGGING_LEVEL", &cfg.Logging.Level)
	str("LOGGING_FORMAT", &cfg.Logging.Format)
}
