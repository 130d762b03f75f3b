// Package log configures the process-wide slog logger. Every CCRS binary
// calls Setup once at boot and tags itself, so log lines from ccrs-api and
// ccrs-scheduler are distinguishable when both feed the same aggregator.
package log

import (
	"log/slog"
	"os"
)

// ParseLevel maps the --log-level flag values to slog levels. Unknown values
// fall back to info rather than failing boot.
func ParseLevel(logLevel string) slog.Level {
	switch logLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs the default logger for a CCRS service binary.
func Setup(serviceName, logLevel string) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	})

	slog.SetDefault(slog.New(handler).With("service", serviceName))
}

// WithModule derives a logger tagged with the owning module, e.g.
// "workflow_engine" or "escalation_scanner".
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
