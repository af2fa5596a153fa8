package log

import "github.com/sirupsen/logrus"

// Logger is the process-scoped sink the pipeline writes diagnostics
// through. A nil *Logger is valid and silently drops everything, so
// callers who never configure one pay no cost.
type Logger struct {
	entry *logrus.Entry
}

// New wraps a logrus.Logger (or nil, for a fresh one) and sets it to
// logrus's PanicLevel, its quietest setting, so only panic-level entries
// pass until SetLevel changes the threshold.
func New(base *logrus.Logger) *Logger {
	if base == nil {
		base = logrus.New()
	}
	base.SetLevel(logrus.PanicLevel)
	return &Logger{entry: logrus.NewEntry(base)}
}

// SetLevel raises or lowers the underlying logrus level.
func (l *Logger) SetLevel(lvl Level) {
	if l == nil {
		return
	}
	l.entry.Logger.SetLevel(lvl.logrus())
}

// Log emits msg at the given level.
func (l *Logger) Log(lvl Level, msg string) {
	if l == nil {
		return
	}
	l.entry.Log(lvl.logrus(), msg)
}

// Logf emits a formatted message at the given level.
func (l *Logger) Logf(lvl Level, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.entry.Logf(lvl.logrus(), format, args...)
}

// Debugf is a shorthand for Logf(DebugLevel, ...), the level of the
// pipeline's low-memory fallback trace and the tar reader's skipped-entry
// trace.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Logf(DebugLevel, format, args...)
}
