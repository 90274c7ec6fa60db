package observability

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MockTag is attached to every message while debug logging is on
const MockTag = "[MockEngine]"

// NewZap builds a structured logger for the given level
func NewZap(logLevel string, isDevelopment bool) (*zap.Logger, error) {
	var config zap.Config

	if isDevelopment {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	return config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// Logger wraps a zap logger with a runtime debug toggle.
// While debug is on, L returns a logger that tags every entry.
type Logger struct {
	base   *zap.Logger
	tagged *zap.Logger
	debug  *atomic.Bool
}

// NewLogger wraps base. A nil base logs nothing.
func NewLogger(base *zap.Logger, debug bool) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	l := &Logger{
		base:   base,
		tagged: base.With(zap.String("tag", MockTag)),
		debug:  &atomic.Bool{},
	}
	l.debug.Store(debug)
	return l
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return NewLogger(nil, false)
}

// L returns the logger to use for the next message
func (l *Logger) L() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	if l.debug.Load() {
		return l.tagged
	}
	return l.base
}

// Named returns a child logger sharing the same debug toggle
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		base:   l.base.Named(name),
		tagged: l.tagged.Named(name),
		debug:  l.debug,
	}
}

// SetDebug turns tagged debug logging on or off
func (l *Logger) SetDebug(on bool) {
	l.debug.Store(on)
}

// Debugging reports whether debug logging is on
func (l *Logger) Debugging() bool {
	return l.debug.Load()
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() {
	_ = l.base.Sync()
}
