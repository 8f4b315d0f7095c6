// Package logging is the one concrete implementation of model.Logger,
// adapting github.com/rs/zerolog to the catalog engine's five-level
// taxonomy (VERBOSE, LOG, INFO, WARNING, ERROR). No other catalog package
// imports zerolog directly; they depend on the model.Logger interface
// instead, so the sink can be swapped without touching engine code.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/cybernetics/pg-probackup/internal/model"
)

// Logger wraps zerolog.Logger to provide structured logging.
type Logger struct {
	zerolog.Logger
}

// Config holds logging configuration.
type Config struct {
	Level      string `json:"level"`
	JSONOutput bool   `json:"jsonOutput"`
}

// NewLogger creates a new logger with the given configuration, writing to
// stdout.
func NewLogger(cfg Config) *Logger {
	if cfg.JSONOutput {
		return newWithWriter(cfg, os.Stdout)
	}

	// Auto-detect whether stdout is a real terminal so piped/redirected
	// output (CI logs, log aggregators) doesn't carry ANSI escapes.
	out := colorable.NewColorableStdout()
	noColor := !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())

	return newWithWriter(cfg, zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	})
}

// newWithWriter builds a Logger against an arbitrary io.Writer, bypassing
// the stdout/terminal-detection wiring. Exercised directly by tests that
// need to inspect the emitted log lines.
func newWithWriter(cfg Config, w io.Writer) *Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if l, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = l
		}
	}

	return &Logger{
		Logger: zerolog.New(w).
			Level(level).
			With().
			Timestamp().
			Logger(),
	}
}

// Component adds a component field to the logger.
func (l *Logger) Component(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// Operation adds an operation field to the logger.
func (l *Logger) Operation(operation string) *Logger {
	return &Logger{
		Logger: l.With().Str("operation", operation).Logger(),
	}
}

// WithFields adds multiple fields to the logger.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{
		Logger: ctx.Logger(),
	}
}

// Printf implements a plain printf-style logging entry point for callers
// that don't care about structured fields.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Logger.Info().Msgf(format, v...)
}

var _ model.Logger = (*Logger)(nil)

// Verbose logs at the VERBOSE level (zerolog Trace).
func (l *Logger) Verbose(msg string, kv ...any) {
	withFields(l.Logger.Trace(), kv...).Msg(msg)
}

// Log logs at the LOG level (zerolog Debug).
func (l *Logger) Log(msg string, kv ...any) {
	withFields(l.Logger.Debug(), kv...).Msg(msg)
}

// Info logs at the INFO level. This shadows the embedded zerolog.Logger's
// Info() *zerolog.Event method with the model.Logger-shaped signature;
// callers who want the raw zerolog event builder use l.Logger.Info().
func (l *Logger) Info(msg string, kv ...any) {
	withFields(l.Logger.Info(), kv...).Msg(msg)
}

// Warning logs at the WARNING level (zerolog Warn).
func (l *Logger) Warning(msg string, kv ...any) {
	withFields(l.Logger.Warn(), kv...).Msg(msg)
}

// Error logs at the ERROR level and terminates the process:
// "ERROR is fatal to the process". Library functions in the catalog
// engine never call this themselves; only top-level callers (e.g.
// cmd/catalogtool) escalate a returned error to Error.
func (l *Logger) Error(msg string, kv ...any) {
	withFields(l.Logger.Fatal(), kv...).Msg(msg)
}

func withFields(e *zerolog.Event, kv ...any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}
