package log

import (
	"github.com/sirupsen/logrus"
)

// StructuredLogger implements LibraryLogger over logrus, giving the
// orchestrator (C10) and parallel dispatcher (C7) field-structured
// diagnostics (unit, step, attempt) that the plain file-based Logger
// cannot carry. Construct with fields already bound via WithFields to
// tag every message emitted during one Build Unit's lifecycle.
type StructuredLogger struct {
	entry *logrus.Entry
}

// NewStructuredLogger creates a StructuredLogger writing logrus
// text-formatted entries (key=value fields, full timestamps) to stderr.
func NewStructuredLogger() *StructuredLogger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &StructuredLogger{entry: logrus.NewEntry(l)}
}

// WithFields returns a derived StructuredLogger tagging every subsequent
// message with the given fields (e.g. {"unit": "gzip/1.4-GCC-4.6.3"}).
func (s *StructuredLogger) WithFields(fields map[string]any) *StructuredLogger {
	return &StructuredLogger{entry: s.entry.WithFields(logrus.Fields(fields))}
}

func (s *StructuredLogger) Info(format string, args ...any)  { s.entry.Infof(format, args...) }
func (s *StructuredLogger) Debug(format string, args ...any) { s.entry.Debugf(format, args...) }
func (s *StructuredLogger) Warn(format string, args ...any)  { s.entry.Warnf(format, args...) }
func (s *StructuredLogger) Error(format string, args ...any) { s.entry.Errorf(format, args...) }
