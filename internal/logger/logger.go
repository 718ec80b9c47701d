// Package logger wraps github.com/charmbracelet/log with the small
// fixed API the rest of geoflow depends on: leveled logging with
// attached structured fields, JSON output for non-interactive runs.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	cblog "github.com/charmbracelet/log"
)

// Options configures a Logger at construction time.
type Options struct {
	Level         string
	HumanReadable bool
	Writer        io.Writer
}

// Logger is a structured, leveled logger carrying a fixed set of fields.
type Logger struct {
	base   *cblog.Logger
	fields []interface{}
}

// New creates a Logger from Options.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}

	level := cblog.InfoLevel
	if opts.Level != "" {
		parsed, err := cblog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	formatter := cblog.JSONFormatter
	if opts.HumanReadable {
		formatter = cblog.TextFormatter
	}

	base := cblog.NewWithOptions(writer, cblog.Options{
		Level:           level,
		ReportTimestamp: true,
		Formatter:       formatter,
	})

	return &Logger{base: base}, nil
}

// WithFields returns a derived Logger that always attaches the supplied
// fields, in addition to any already attached.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil || len(fields) == 0 {
		return l
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	next := make([]interface{}, len(l.fields), len(l.fields)+len(fields)*2)
	copy(next, l.fields)
	for _, key := range keys {
		next = append(next, key, fields[key])
	}

	return &Logger{base: l.base, fields: next}
}

// Info writes an informational log entry.
func (l *Logger) Info(msg string) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Info(strings.TrimSpace(msg), l.fields...)
}

// Debug writes a debug-level log entry if enabled.
func (l *Logger) Debug(msg string) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Debug(strings.TrimSpace(msg), l.fields...)
}

// Warn writes a warning-level log entry.
func (l *Logger) Warn(msg string) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Warn(strings.TrimSpace(msg), l.fields...)
}

// Error writes an error-level log entry, attaching err under the
// "error" field when present.
func (l *Logger) Error(err error, msg string) {
	if l == nil || l.base == nil {
		return
	}
	fields := l.fields
	if err != nil {
		fields = append(append([]interface{}{}, l.fields...), "error", err.Error())
	}
	l.base.Error(strings.TrimSpace(msg), fields...)
}
