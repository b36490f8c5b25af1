package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the zap encoder.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

const (
	envLevel  = "QUERYGATE_LOG_LEVEL"
	envFormat = "QUERYGATE_LOG_FORMAT"

	// DefaultLevel keeps the CLI quiet unless something goes wrong.
	DefaultLevel = "warn"
)

var (
	initOnce sync.Once
	base     = zap.NewNop()
)

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05 MST"))
}

// New builds a logger writing to stderr. level is a zap level name
// (debug, info, warn, error); format is console or json.
func New(level string, format Format) (*zap.Logger, error) {
	return newWithSink(level, format, os.Stderr)
}

func newWithSink(level string, format Format, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var enc zapcore.Encoder
	switch Format(strings.ToLower(string(format))) {
	case FormatJSON:
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	case FormatConsole, "":
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeTime = timeEncoder
		cfg.ConsoleSeparator = " | "
		enc = zapcore.NewConsoleEncoder(cfg)
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(lvl))
	return zap.New(core, zap.AddCaller()), nil
}

// Initialize builds the process logger from QUERYGATE_LOG_LEVEL and
// QUERYGATE_LOG_FORMAT. Invalid values fall back to the defaults. Only the
// first call has an effect.
func Initialize() {
	initOnce.Do(func() {
		level := os.Getenv(envLevel)
		if level == "" {
			level = DefaultLevel
		}
		format := Format(os.Getenv(envFormat))

		l, err := New(level, format)
		if err != nil {
			l, _ = New(DefaultLevel, FormatConsole)
			l.Warn("ignoring logging environment", zap.Error(err))
		}
		base = l
		zap.ReplaceGlobals(l)
	})
}

// For returns a named logger for one component.
func For(component string) *zap.SugaredLogger {
	Initialize()
	return base.Named(component).Sugar()
}

// Sync flushes buffered entries.
func Sync() error {
	return base.Sync()
}
