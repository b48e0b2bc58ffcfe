//go:build windows

package zlog

import (
	"errors"

	"github.com/rs/zerolog"
)

// syslogWriter is unavailable on Windows; --syslog degrades to stderr-only
// logging there (SPEC_FULL.md "Logging").
func syslogWriter(string) (zerolog.LevelWriter, error) {
	return nil, errors.New("zlog: syslog not supported on this platform")
}
