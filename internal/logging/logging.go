// Package logging builds the loggers of depconfctl: a tint handler on stderr,
// a level taken from --log-level or DEPCONFCTL_LOG_LEVEL, and a "subsystem"
// attribute naming the part of the reconciler that logged the line.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Level is the verbosity of a logger. Debug shows every reconciled property,
// info shows one line per request and apply.
type Level slog.Level

const (
	LevelDebug Level = Level(slog.LevelDebug)
	LevelInfo  Level = Level(slog.LevelInfo)
	LevelWarn  Level = Level(slog.LevelWarn)
	LevelError Level = Level(slog.LevelError)
)

// Subsystem names used across the CLI.
const (
	SubsystemAdvisor  = "advisor"
	SubsystemEngine   = "engine"
	SubsystemStackAPI = "stackapi"
	SubsystemState    = "state"
)

// ParseLevel converts a textual log level into a Level. An empty value is
// info; an unknown value is an error.
func ParseLevel(value string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q, expected debug, info, warn or error", value)
	}
}

// String returns the slog name of the level.
func (l Level) String() string {
	return slog.Level(l).String()
}

// NewLogger constructs a tint logger writing to w, stderr when w is nil.
// Colors are disabled when NO_COLOR is set.
func NewLogger(w io.Writer, level Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	_, noColor := os.LookupEnv("NO_COLOR")

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      slog.Level(level),
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	}))
}

// Subsystem returns logger tagged with the subsystem name. A nil logger
// yields a discarding one.
func Subsystem(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger.With(slog.String("subsystem", name))
}
