// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	current.Store(&l)
}

// Logger returns the package logger. It defaults to a console writer on
// stderr but may be replaced by SetLogger or Configure.
func Logger() zerolog.Logger {
	return *current.Load()
}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(l *zerolog.Logger) {
	if l == nil {
		nop := zerolog.Nop()
		current.Store(&nop)
		return
	}
	cp := *l
	current.Store(&cp)
}

// Logf is a printf-style shim for libraries that only know Printf.
func Logf(format string, v ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, v...)
}

// Configure installs a logger writing to w at the named level ("debug",
// "info", "warn", "error"). With console set the output is human readable,
// otherwise it is one JSON object per line.
func Configure(w io.Writer, level string, console bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	SetLogger(&l)
	return nil
}

// ParseLevel maps a level name to a zerolog level. The empty string is info.
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}
