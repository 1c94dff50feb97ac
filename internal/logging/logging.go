// Package logging wires the kernel's structured logger: the CLI
// commands log through a *log.Logger from gravwell's ingest/log,
// which emits RFC5424 syslog-shaped lines and carries structured
// fields as rfc5424.SDParam pairs rather than printf-formatted text.
package logging

import (
	"fmt"

	glog "github.com/gravwell/gravwell/v3/ingest/log"
	"github.com/crewjam/rfc5424"
)

// Logger is the kernel-wide structured logger handle.
type Logger = glog.Logger

// New opens a file-backed logger at path, named appname, at the given
// level string (debug/info/warn/error/critical/off).
func New(path, appname, level string) (*Logger, error) {
	l, err := glog.NewFile(path)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	if err := l.SetAppname(appname); err != nil {
		l.Close()
		return nil, fmt.Errorf("set logger appname: %w", err)
	}
	if err := l.SetLevelString(level); err != nil {
		l.Close()
		return nil, fmt.Errorf("set log level %q: %w", level, err)
	}
	return l, nil
}

// NewDiscard returns a logger that drops everything, for tests and
// for components run with logging disabled.
func NewDiscard() *Logger {
	return glog.NewDiscardLogger()
}

// Field builds a structured log parameter the way every call site in
// this module tags a status code, node id, or volume index onto a log
// line.
func Field(name string, value any) rfc5424.SDParam {
	return rfc5424.SDParam{Name: name, Value: fmt.Sprint(value)}
}
