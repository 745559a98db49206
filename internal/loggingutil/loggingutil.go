// Package loggingutil holds the pslog helpers shared by the CLI, the MCP
// server, and the Chronicle client.
package loggingutil

import (
	"io"
	"strings"
	"sync"

	"pkt.systems/pslog"
)

// SubsystemKey tags every entry with the component that emitted it.
const SubsystemKey = pslog.TrustedString("sys")

// EnvPrefix scopes the pslog environment overrides (SECOPS_LOG_LEVEL, ...).
const EnvPrefix = "SECOPS_LOG_"

var (
	noOnce   sync.Once
	noLogger pslog.Logger
)

// NoopLogger returns a disabled logger that discards all entries.
func NoopLogger() pslog.Logger {
	noOnce.Do(func() {
		noLogger = pslog.NewWithOptions(io.Discard, pslog.Options{
			Mode:     pslog.ModeStructured,
			MinLevel: pslog.Disabled,
		})
	})
	return noLogger
}

// EnsureLogger returns l when non-nil, otherwise a disabled logger.
func EnsureLogger(l pslog.Logger) pslog.Logger {
	if l != nil {
		return l
	}
	return NoopLogger()
}

// WithSubsystem attaches a dot-delimited subsystem tag to every entry.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	logger = EnsureLogger(logger)
	subsystem = strings.Trim(subsystem, ". ")
	if subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}

// ProcessLogger builds the stderr logger used by the binaries. Stdout is
// reserved for the stdio transport and for user-facing output.
func ProcessLogger(w io.Writer, app string) pslog.Logger {
	return pslog.LoggerFromEnv(
		pslog.WithEnvPrefix(EnvPrefix),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(w),
	).With("app", app)
}

// ApplyLevel returns logger at the parsed level, or logger unchanged when raw
// is empty or unknown.
func ApplyLevel(logger pslog.Logger, raw string) pslog.Logger {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return logger
	}
	level, ok := pslog.ParseLevel(raw)
	if !ok {
		return logger
	}
	return logger.LogLevel(level)
}
