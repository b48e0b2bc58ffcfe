//go:build !windows

package zlog

import (
	"log/syslog"

	"github.com/rs/zerolog"
)

// syslogWriter opens a local syslog connection tagged with component
// (spec.md §6 "--syslog"). Non-Unix builds fall back to stderr only; see
// syslog_other.go.
func syslogWriter(component string) (zerolog.LevelWriter, error) {
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, component)
	if err != nil {
		return nil, err
	}
	sw, err := zerolog.SyslogLevelWriter(w)
	if err != nil {
		return nil, err
	}
	return sw, nil
}
