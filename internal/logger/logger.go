// Package logger provides the levelled, printf-style logging used across graphrelay.
//
// Output goes through zerolog: a human readable console writer when stderr is a
// terminal, JSON lines otherwise. Debug output is enabled with SetVerbose.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var (
	current atomic.Pointer[zerolog.Logger]
	verbose atomic.Bool
)

func init() {
	l := newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
	current.Store(&l)
}

func newLogger(w io.Writer, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(level())
}

func level() zerolog.Level {
	if verbose.Load() {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// SetVerbose enables or disables debug output.
func SetVerbose(v bool) {
	verbose.Store(v)
	l := current.Load().Level(level())
	current.Store(&l)
}

// IsVerbose reports whether debug output is enabled.
func IsVerbose() bool {
	return verbose.Load()
}

// SetOutput redirects log output to w as JSON lines. Intended for tests and
// for running under a supervisor that collects stderr.
func SetOutput(w io.Writer) {
	l := newLogger(w, false)
	current.Store(&l)
}

// Get returns the underlying zerolog logger for structured call sites.
func Get() *zerolog.Logger {
	return current.Load()
}

// Debug logs a formatted message at debug level.
func Debug(format string, args ...any) {
	current.Load().Debug().Msg(fmt.Sprintf(format, args...))
}

// Info logs a formatted message at info level.
func Info(format string, args ...any) {
	current.Load().Info().Msg(fmt.Sprintf(format, args...))
}

// Warn logs a formatted message at warning level.
func Warn(format string, args ...any) {
	current.Load().Warn().Msg(fmt.Sprintf(format, args...))
}

// Error logs a formatted message at error level.
func Error(format string, args ...any) {
	current.Load().Error().Msg(fmt.Sprintf(format, args...))
}
