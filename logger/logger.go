// Package logger defines the logging contract used across the datahook
// runtime and a zerolog-backed default implementation.
//
// Adapted from the teacher's interfaces.Logger (Debug/Info/Warn/Error,
// one severity each) generalized to printf-style variadic methods, which
// is how the teacher's own core package actually calls its logger
// (p.logger.Warn("error in PreLLMHook for plugin %s: %s", pluginName,
// err.Error())) even though the older interfaces.Logger signature never
// grew past single-string methods.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level mirrors the teacher's LogLevel vocabulary.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Logger is the contract every package in this module logs through.
// Controllers take one through their Config's Logger field and hand it
// to the plugin Executor via SetLogger; plugin constructors and the
// plugin Context do not carry a Logger.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	SetLevel(level Level)
}

// Zerolog is the default Logger, writing structured, levelled logs via
// github.com/rs/zerolog (a direct teacher dependency).
type Zerolog struct {
	log zerolog.Logger
}

// New creates a Zerolog logger writing to w at the given level. Output is
// zerolog's JSON lines unless w is a zerolog.ConsoleWriter, which gives
// human-readable console output (as NewDefault uses). A nil w writes to
// os.Stdout.
func New(w io.Writer, level Level) *Zerolog {
	if w == nil {
		w = os.Stdout
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	z := &Zerolog{log: zl}
	z.SetLevel(level)
	return z
}

// NewDefault returns a console-formatted logger at info level, the
// out-of-the-box default used when a caller does not supply a Logger.
func NewDefault() *Zerolog {
	return New(zerolog.ConsoleWriter{Out: os.Stdout}, LevelInfo)
}

func (z *Zerolog) Debug(format string, args ...any) { z.log.Debug().Msgf(format, args...) }
func (z *Zerolog) Info(format string, args ...any)  { z.log.Info().Msgf(format, args...) }
func (z *Zerolog) Warn(format string, args ...any)  { z.log.Warn().Msgf(format, args...) }
func (z *Zerolog) Error(format string, args ...any) { z.log.Error().Msgf(format, args...) }

func (z *Zerolog) SetLevel(level Level) {
	switch level {
	case LevelDebug:
		z.log = z.log.Level(zerolog.DebugLevel)
	case LevelInfo:
		z.log = z.log.Level(zerolog.InfoLevel)
	case LevelWarn:
		z.log = z.log.Level(zerolog.WarnLevel)
	case LevelError:
		z.log = z.log.Level(zerolog.ErrorLevel)
	default:
		z.log = z.log.Level(zerolog.InfoLevel)
	}
}

// NoOp discards everything; useful in tests that don't want log noise.
type NoOp struct{}

func (NoOp) Debug(string, ...any) {}
func (NoOp) Info(string, ...any)  {}
func (NoOp) Warn(string, ...any)  {}
func (NoOp) Error(string, ...any) {}
func (NoOp) SetLevel(Level)       {}
