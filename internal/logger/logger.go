// Package logger builds the slog logger used across the service. Attribute
// values whose keys look secret-bearing (passwords, tokens, OTP codes) are
// redacted before they are written.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

// requestIDKey carries the chi request id through the context
var requestIDKey contextKey

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // json or text
	Output    string // stdout, stderr, or a file path
	AddSource bool
}

// DefaultConfig reads the logger configuration from the environment
func DefaultConfig() Config {
	cfg := Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    os.Getenv("LOG_OUTPUT"),
		AddSource: os.Getenv("LOG_ADD_SOURCE") == "true",
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
	return cfg
}

// New creates a structured logger from the configuration
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: redactSecrets,
	}

	out := openOutput(cfg.Output)
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func openOutput(dest string) io.Writer {
	switch strings.ToLower(dest) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stdout
	}
	return f
}

// secretFragments flags any attribute whose key contains one of these
var secretFragments = []string{
	"password", "token", "secret", "otp", "code", "authorization", "cookie",
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, fragment := range secretFragments {
		if strings.Contains(key, fragment) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

// SetRequestID stores the request id in the context
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID reads the request id back out; empty when absent
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRequestID annotates a logger with the context's request id
func WithRequestID(ctx context.Context, log *slog.Logger) *slog.Logger {
	if id := GetRequestID(ctx); id != "" {
		return log.With(slog.String("request_id", id))
	}
	return log
}
