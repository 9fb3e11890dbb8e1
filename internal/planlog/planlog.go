// Package planlog writes the structured plan log: one record per mark,
// per resolver invocation and per reaper decision.
package planlog

import (
	"bytes"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Record field names.
const (
	FieldStage    = "stage"
	FieldDecision = "decision"
	FieldName     = "name"
	FieldReason   = "reason"
)

// Logger is a zerolog logger bound to a planning stage.
type Logger struct {
	zl    zerolog.Logger
	stage string
}

// New creates a JSON logger writing to w at the given minimum level.
func New(w io.Writer, level zerolog.Level) *Logger {
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewConsole creates a human readable logger writing to w, used by the
// CLI when no log file is given.
func NewConsole(w io.Writer, level zerolog.Level) *Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	return New(out, level)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Stage returns a copy of l whose records carry stage.
func (l *Logger) Stage(stage string) *Logger {
	return &Logger{zl: l.zl, stage: stage}
}

// StageName returns the stage l is bound to.
func (l *Logger) StageName() string {
	return l.stage
}

func (l *Logger) event(e *zerolog.Event, decision, name, reason string) {
	e = e.Str(FieldStage, l.stage).Str(FieldDecision, decision)
	if name != "" {
		e = e.Str(FieldName, name)
	}
	if reason != "" {
		e = e.Str(FieldReason, reason)
	}
	e.Send()
}

// Decision logs an info record.
func (l *Logger) Decision(decision, name, reason string) {
	l.event(l.zl.Info(), decision, name, reason)
}

// Debug logs a debug record.
func (l *Logger) Debug(decision, name, reason string) {
	l.event(l.zl.Debug(), decision, name, reason)
}

// Warn logs a warning record.
func (l *Logger) Warn(decision, name, reason string) {
	l.event(l.zl.Warn(), decision, name, reason)
}

// Error logs an error record. Errors are never fatal by themselves.
func (l *Logger) Error(decision, name, reason string) {
	l.event(l.zl.Error(), decision, name, reason)
}

// TraceWriter returns a writer that logs every complete line written to it
// as a debug record with decision "trace".
func (l *Logger) TraceWriter() io.Writer {
	return &lineWriter{log: l}
}

type lineWriter struct {
	log *Logger
	buf bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// incomplete line, keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		if line = line[:len(line)-1]; line != "" {
			w.log.Debug("trace", "", line)
		}
	}
}
