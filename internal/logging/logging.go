// Package logging provides the structured, leveled logger shared by every
// stage of the pipeline. Every warning is tagged with the error Kind it
// belongs to (see the error table in the design notes) so a warning stream
// remains both human-readable on a terminal and machine-filterable when fed
// through a log aggregator.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Kind classifies a warning or error by its origin, matching the error
// table: ConfigError, InputAccessError, OutputCreateError, WalkWarning,
// HashReadError, ReportParseError, ActionError, RestoreError.
type Kind string

const (
	ConfigError       Kind = "ConfigError"
	InputAccessError  Kind = "InputAccessError"
	OutputCreateError Kind = "OutputCreateError"
	WalkWarning       Kind = "WalkWarning"
	HashReadError     Kind = "HashReadError"
	ReportParseError  Kind = "ReportParseError"
	ActionError       Kind = "ActionError"
	RestoreError      Kind = "RestoreError"
)

// Logger wraps a logrus.Logger with helpers that attach a Kind and, where
// relevant, a path to every entry.
type Logger struct {
	l *logrus.Logger

	warnCount int64
}

// New creates a Logger writing to stderr. When quiet is true only errors
// (not warnings) are emitted.
func New(quiet bool) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, FullTimestamp: false})
	if quiet {
		l.SetLevel(logrus.ErrorLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
	return &Logger{l: l}
}

// NewWithOutput creates a Logger writing to an arbitrary sink, used in tests
// to capture output.
func NewWithOutput(w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return &Logger{l: l}
}

// Warn records a non-fatal error for path, tagged with kind. Warnings never
// abort the operation that raised them.
func (lg *Logger) Warn(kind Kind, path string, err error) {
	lg.warnCount++
	entry := lg.l.WithField("kind", string(kind))
	if path != "" {
		entry = entry.WithField("path", path)
	}
	entry.Warn(err)
}

// Error records a fatal condition before the caller exits.
func (lg *Logger) Error(kind Kind, err error) {
	lg.l.WithField("kind", string(kind)).Error(err)
}

// WarnCount returns the number of warnings recorded so far. No command
// prints it in its summary.
func (lg *Logger) WarnCount() int64 { return lg.warnCount }
