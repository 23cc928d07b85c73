// Package observability wires structured logging, prometheus metrics and
// OpenTelemetry tracing for the points engine.
package observability

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// LogConfig selects the log format and level.
type LogConfig struct {
	Service string
	Env     string
	Level   string // debug, info, warn, error
	Format  string // json (default) or text
}

// SetupLogging installs a slog logger as the process default and bridges
// the standard library logger into it. Every line carries the service name
// and environment when provided.
func SetupLogging(cfg LogConfig) *slog.Logger {
	return setupLogging(cfg, os.Stdout)
}

func setupLogging(cfg LogConfig, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			}
			if attr.Key == slog.LevelKey {
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			}
			if attr.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(cfg.Service))}
	if env := strings.TrimSpace(cfg.Env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	handler = handler.WithAttrs(attrs)

	logger := slog.New(handler)
	slog.SetDefault(logger)

	stdBridge := slog.NewLogLogger(handler, slog.LevelInfo)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return logger
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
