// Package log builds the logger shared by every command. Commands receive
// the logger through their options rather than a package variable, so tests
// can inject their own.
package log

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options control logger construction from the root command's flags.
type Options struct {
	// Verbosity raises the amount of detail; each level maps to a logr V
	// level. Zero is the default informational output.
	Verbosity int
	// Silent drops everything below the error level.
	Silent bool
}

// New constructs a console logger writing to stderr. Command output goes to
// stdout, so piping structured output never interleaves with log lines.
func New(opts Options) logr.Logger {
	level := zapcore.Level(-opts.Verbosity)
	if opts.Silent {
		level = zapcore.ErrorLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(level),
	)
	return zapr.NewLogger(zap.New(core))
}

// Discard returns a logger that drops everything. Tests use it where log
// output is irrelevant.
func Discard() logr.Logger {
	return logr.Discard()
}
