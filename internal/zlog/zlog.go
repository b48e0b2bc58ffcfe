// Package zlog is the logging façade every component logs through
// (SPEC_FULL.md "Logging"): a single github.com/rs/zerolog.Logger built
// once at startup from the --syslog/--verbose flags (spec.md §6), then
// threaded explicitly into each component rather than read off a package
// global.
package zlog

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the base logger for a process. verbose lowers the level to
// debug; otherwise info. syslog attaches a syslog writer on platforms
// that support it (see syslog_unix.go / syslog_other.go) in addition to
// stderr; on unsupported platforms it is a no-op and stderr alone is used.
func New(component string, verbose, syslog bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	writers := []zerolog.LevelWriter{consoleWriter()}
	if syslog {
		if w, err := syslogWriter(component); err == nil {
			writers = append(writers, w)
		}
	}

	var w zerolog.LevelWriter
	if len(writers) == 1 {
		w = writers[0]
	} else {
		ws := make([]zerolog.LevelWriter, len(writers))
		copy(ws, writers)
		w = multiLevelWriter(ws)
	}

	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("component", component).
		Logger()
}

func consoleWriter() zerolog.LevelWriter {
	return levelWriterAdapter{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}}
}

// levelWriterAdapter promotes an io.Writer without its own WriteLevel to
// zerolog.LevelWriter, matching zerolog's own internal adapter shape.
type levelWriterAdapter struct {
	w interface {
		Write(p []byte) (int, error)
	}
}

func (a levelWriterAdapter) Write(p []byte) (int, error) { return a.w.Write(p) }
func (a levelWriterAdapter) WriteLevel(_ zerolog.Level, p []byte) (int, error) {
	return a.w.Write(p)
}

type multiLevelWriter []zerolog.LevelWriter

func (m multiLevelWriter) Write(p []byte) (int, error) {
	for _, w := range m {
		if _, err := w.Write(p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (m multiLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	for _, w := range m {
		if _, err := w.WriteLevel(level, p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
