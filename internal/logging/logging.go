// SPDX-License-Identifier: MIT
// Package logging builds the zap loggers used for diagnostics. User-facing
// command output never goes through these loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a supported logging granularity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format is a supported log encoding.
type Format string

const (
	FormatConsole    Format = "console"
	FormatStructured Format = "structured"
)

var levelMapping = map[Level]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
}

var (
	_ pflag.Value = (*Level)(nil)
	_ pflag.Value = (*Format)(nil)
)

func (l *Level) String() string { return string(*l) }

func (l *Level) Set(value string) error {
	v := Level(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := levelMapping[v]; !ok {
		return fmt.Errorf("unsupported log level: %s", value)
	}
	*l = v
	return nil
}

func (l *Level) Type() string { return "level" }

func (f *Format) String() string { return string(*f) }

func (f *Format) Set(value string) error {
	v := Format(strings.ToLower(strings.TrimSpace(value)))
	switch v {
	case FormatConsole, FormatStructured:
		*f = v
		return nil
	default:
		return fmt.Errorf("unsupported log format: %s", value)
	}
}

func (f *Format) Type() string { return "format" }

// Factory builds loggers writing to a fixed sink.
type Factory struct {
	out io.Writer
}

// NewFactory returns a factory writing to w, or stderr when w is nil.
func NewFactory(w io.Writer) *Factory {
	if w == nil {
		w = os.Stderr
	}
	return &Factory{out: w}
}

// CreateLogger produces a logger honoring the requested level and format.
func (f *Factory) CreateLogger(level Level, format Format) (*zap.Logger, error) {
	zapLevel, ok := levelMapping[level]
	if !ok {
		return nil, fmt.Errorf("unsupported log level: %s", level)
	}

	var encoder zapcore.Encoder
	switch format {
	case FormatStructured:
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	case FormatConsole:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encoder = zapcore.NewConsoleEncoder(cfg)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(f.out)), zap.NewAtomicLevelAt(zapLevel))
	return zap.New(core), nil
}

// LevelFor maps the CLI verbosity flags to a level. Quiet wins over verbose.
func LevelFor(verbose, quiet bool, explicit Level) Level {
	switch {
	case explicit != "":
		return explicit
	case quiet:
		return LevelError
	case verbose:
		return LevelDebug
	default:
		return LevelWarn
	}
}
