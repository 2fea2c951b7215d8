package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/meigma/crawlzip/archive"
)

// FieldError is a validation failure of one configuration field.
type FieldError struct {
	// Field is the dotted YAML path of the field, e.g. "archive.format".
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found by Validate.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "invalid configuration"
	case 1:
		return "invalid configuration: " + e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid configuration (%d errors):", len(e.Errors))
	for _, fe := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(fe.Error())
	}
	return sb.String()
}

// Validate checks cfg and returns a ValidationError listing every problem.
func Validate(cfg *Config) error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := archive.ParseFormat(cfg.Archive.Format); err != nil {
		add("archive.format", "unknown format %q", cfg.Archive.Format)
	}
	if _, err := archive.ParseCompression(cfg.Archive.Compression); err != nil {
		add("archive.compression", "unknown compression %q", cfg.Archive.Compression)
	}
	if cfg.Spool.ChunkSize <= 0 {
		add("spool.chunk_size", "must be positive, got %d", cfg.Spool.ChunkSize)
	}
	if cfg.Fetch.Concurrency <= 0 {
		add("fetch.concurrency", "must be positive, got %d", cfg.Fetch.Concurrency)
	}
	if cfg.Fetch.Timeout < 0 {
		add("fetch.timeout", "must not be negative, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			add("metrics.addr", "invalid listen address %q", cfg.Metrics.Addr)
		}
	}
	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		add("logging.format", "must be text or json, got %q", cfg.Logging.Format)
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
