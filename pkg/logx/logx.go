// Package logx supplies the injected logger used across the module. Per
// SPEC_FULL.md's ambient stack, nothing here is a package-level singleton:
// every consumer takes a Logger through its own configuration and falls
// back to the colorized default only when the caller supplies none.
package logx

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Level mirrors gocan's EventType: an ordered severity a Logger message
// carries alongside its text.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the interface every component that logs takes as a
// constructor/option argument. Passing nil wherever a Logger is accepted
// installs Default().
type Logger interface {
	Log(level Level, format string, args ...interface{})
}

// LoggerFunc adapts a plain function to Logger.
type LoggerFunc func(level Level, format string, args ...interface{})

func (f LoggerFunc) Log(level Level, format string, args ...interface{}) { f(level, format, args...) }

// Discard is a Logger that drops everything, useful for tests that want to
// exercise a code path without asserting on its log output.
var Discard Logger = LoggerFunc(func(Level, string, ...interface{}) {})

type colorWriter struct {
	out       io.Writer
	colorized bool
	debug     *color.Color
	info      *color.Color
	warn      *color.Color
	err       *color.Color
}

// New builds a Logger that writes to out, colorizing level tags with
// fatih/color when out is a terminal (detected with mattn/go-isatty) and
// emitting plain text otherwise, matching gocan's frame.go coloring of
// identifiers/hex/ASCII columns but applied to log severity instead.
func New(out *os.File) Logger {
	colorized := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
	return &colorWriter{
		out:       out,
		colorized: colorized,
		debug:     color.New(color.FgHiBlack),
		info:      color.New(color.FgGreen),
		warn:      color.New(color.FgYellow),
		err:       color.New(color.FgRed),
	}
}

// Default returns the package-wide fallback Logger, writing to stderr.
func Default() Logger {
	return New(os.Stderr)
}

func (w *colorWriter) tag(level Level) string {
	text := "[" + level.String() + "]"
	if !w.colorized {
		return text
	}
	switch level {
	case LevelDebug:
		return w.debug.Sprint(text)
	case LevelInfo:
		return w.info.Sprint(text)
	case LevelWarn:
		return w.warn.Sprint(text)
	case LevelError:
		return w.err.Sprint(text)
	default:
		return text
	}
}

func (w *colorWriter) Log(level Level, format string, args ...interface{}) {
	fmt.Fprintf(w.out, "%s %s\n", w.tag(level), fmt.Sprintf(format, args...))
}

// OrDefault returns l, or Default() if l is nil. Every component that
// accepts an optional Logger should route it through this helper instead
// of checking for nil at each call site.
func OrDefault(l Logger) Logger {
	if l == nil {
		return Default()
	}
	return l
}
