// internal/utils/logger.go

package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the interface for logging throughout the application.
type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Warn(msg string)
	Warnf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// LoggingOptions configures the process-wide logger.
type LoggingOptions struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // json or console
	Output string `yaml:"output" json:"output"` // stdout, stderr or a file path
}

var (
	rootMu    sync.RWMutex
	rootLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	root      = newZap("console", "stderr", rootLevel)
)

// Configure rebuilds the root logger. Loggers created afterwards use the new
// encoder and sink; the level change applies to every logger.
func Configure(opts LoggingOptions) error {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "console"
	}
	if format != "console" && format != "json" {
		return fmt.Errorf("unsupported log format: %s", opts.Format)
	}
	output := opts.Output
	if output == "" {
		output = "stderr"
	}

	rootMu.Lock()
	defer rootMu.Unlock()
	rootLevel.SetLevel(toZapLevel(lvl))
	root = newZap(format, output, rootLevel)
	return nil
}

// SetLevel changes the minimum level of every logger.
func SetLevel(level LogLevel) {
	rootLevel.SetLevel(toZapLevel(level))
}

// ParseLevel converts a level name into a LogLevel. Empty means info.
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newZap(format, output string, level zap.AtomicLevel) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	switch output {
	case "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "stderr":
		sink = zapcore.Lock(os.Stderr)
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			sink = zapcore.Lock(os.Stderr)
		} else {
			sink = zapcore.AddSync(f)
		}
	}

	return zap.New(zapcore.NewCore(encoder, sink, level), zap.AddCaller(), zap.AddCallerSkip(1))
}

// zapLogger adapts a sugared zap logger to the Logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a logger backed by the root zap logger.
func NewLogger() Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return &zapLogger{sugar: root.Sugar()}
}

// NewComponentLogger creates a logger tagged with a component name.
func NewComponentLogger(component string) Logger {
	return NewLogger().WithField("component", component)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

// NewZapLogger wraps an existing zap logger, mostly useful in tests with zaptest/observer.
func NewZapLogger(z *zap.Logger) Logger {
	return &zapLogger{sugar: z.Sugar()}
}

func (l *zapLogger) Debug(msg string) { l.sugar.Debug(msg) }

func (l *zapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

func (l *zapLogger) Info(msg string) { l.sugar.Info(msg) }

func (l *zapLogger) Infof(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

func (l *zapLogger) Warn(msg string) { l.sugar.Warn(msg) }

func (l *zapLogger) Warnf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

func (l *zapLogger) Error(msg string) { l.sugar.Error(msg) }

func (l *zapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

func (l *zapLogger) WithField(key string, value interface{}) Logger {
	return &zapLogger{sugar: l.sugar.With(key, value)}
}

func (l *zapLogger) WithFields(fields map[string]interface{}) Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &zapLogger{sugar: l.sugar.With(args...)}
}
