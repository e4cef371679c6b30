// Package logging provides the daemon's tagged logger, backed by
// github.com/stratastor/logger in debug mode (stdout) and by the system
// syslog facility otherwise, matching the -l {daemon,local0..7} directive.
package logging

import (
	"fmt"
	"log/syslog"

	"github.com/stratastor/logger"
)

// Logger is the interface every component receives; it matches
// github.com/stratastor/logger.Logger's call shape (message plus
// alternating key/value pairs) so either backend satisfies it.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Crit(msg string, kv ...any)
}

// taggedLogger wraps the stratastor/logger backend used in debug mode.
type taggedLogger struct {
	tag string
	l   logger.Logger
}

// NewDebug returns a stdout logger tagged with component, for -d runs.
func NewDebug(component string) (Logger, error) {
	l, err := logger.NewTag(logger.Config{LogLevel: "debug"}, component)
	if err != nil {
		return nil, err
	}
	return &taggedLogger{tag: component, l: l}, nil
}

func (t *taggedLogger) Debug(msg string, kv ...any) { t.l.Debug(msg, kv...) }
func (t *taggedLogger) Info(msg string, kv ...any)  { t.l.Info(msg, kv...) }
func (t *taggedLogger) Warn(msg string, kv ...any)  { t.l.Warn(msg, kv...) }
func (t *taggedLogger) Error(msg string, kv ...any) { t.l.Error(msg, kv...) }
func (t *taggedLogger) Crit(msg string, kv ...any)  { t.l.Error(msg, kv...) }

// syslogLogger wraps log/syslog for the -l <facility> daemon-mode path.
type syslogLogger struct {
	tag string
	w   *syslog.Writer
}

var facilities = map[string]syslog.Priority{
	"daemon": syslog.LOG_DAEMON,
	"local0": syslog.LOG_LOCAL0,
	"local1": syslog.LOG_LOCAL1,
	"local2": syslog.LOG_LOCAL2,
	"local3": syslog.LOG_LOCAL3,
	"local4": syslog.LOG_LOCAL4,
	"local5": syslog.LOG_LOCAL5,
	"local6": syslog.LOG_LOCAL6,
	"local7": syslog.LOG_LOCAL7,
}

// NewSyslog returns a logger writing to the named syslog facility, for
// non-debug daemon runs (the -l flag in §6).
func NewSyslog(facility, component string) (Logger, error) {
	prio, ok := facilities[facility]
	if !ok {
		prio = syslog.LOG_DAEMON
	}
	w, err := syslog.New(prio|syslog.LOG_INFO, "smartmond")
	if err != nil {
		return nil, err
	}
	return &syslogLogger{tag: component, w: w}, nil
}

func (s *syslogLogger) line(msg string, kv []any) string {
	out := fmt.Sprintf("[%s] %s", s.tag, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		out += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return out
}

func (s *syslogLogger) Debug(msg string, kv ...any) { s.w.Debug(s.line(msg, kv)) }
func (s *syslogLogger) Info(msg string, kv ...any)  { s.w.Info(s.line(msg, kv)) }
func (s *syslogLogger) Warn(msg string, kv ...any)  { s.w.Warning(s.line(msg, kv)) }
func (s *syslogLogger) Error(msg string, kv ...any) { s.w.Err(s.line(msg, kv)) }
func (s *syslogLogger) Crit(msg string, kv ...any)  { s.w.Crit(s.line(msg, kv)) }
