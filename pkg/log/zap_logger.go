package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Validate that ZapLogger implements the Logger interface
var _ Logger = &ZapLogger{}

// ZapLogger implements Logger on top of a zap.Logger. Derived loggers share
// the parent's atomic level.
type ZapLogger struct {
	z     *zap.Logger
	level zap.AtomicLevel
}

type loggerOptions struct {
	level  Level
	format string
	out    io.Writer
	caller bool
}

// LoggerOption is a function that configures a logger.
type LoggerOption func(*loggerOptions)

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(o *loggerOptions) {
		o.level = level
	}
}

// WithFormat selects the encoder: "json" or "text".
func WithFormat(format string) LoggerOption {
	return func(o *loggerOptions) {
		o.format = strings.ToLower(format)
	}
}

// WithOutput sets the destination writer (stderr by default).
func WithOutput(w io.Writer) LoggerOption {
	return func(o *loggerOptions) {
		o.out = w
	}
}

// WithCaller adds caller information to each entry.
func WithCaller(enabled bool) LoggerOption {
	return func(o *loggerOptions) {
		o.caller = enabled
	}
}

// NewLogger creates a new zap-backed logger with the given options.
func NewLogger(options ...LoggerOption) Logger {
	opts := loggerOptions{level: InfoLevel, format: "text", out: os.Stderr}
	for _, option := range options {
		option(&opts)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	var encoder zapcore.Encoder
	if opts.format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	atom := zap.NewAtomicLevelAt(toZapLevel(opts.level))
	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(opts.out)), atom)

	zopts := []zap.Option{}
	if opts.caller {
		zopts = append(zopts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return &ZapLogger{z: zap.New(core, zopts...), level: atom}
}

// Config defines logging configuration.
type Config struct {
	Level        string `json:"level" yaml:"level" mapstructure:"level"`
	Format       string `json:"format" yaml:"format" mapstructure:"format"`
	EnableCaller bool   `json:"enable_caller" yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ApplyConfig creates a logger from a configuration.
func ApplyConfig(config *Config) (Logger, error) {
	if config == nil {
		config = &Config{Level: "info", Format: "text"}
	}
	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(config.Format) {
	case "json", "text", "":
	default:
		return nil, fmt.Errorf("invalid log format: %s", config.Format)
	}
	return NewLogger(WithLevel(level), WithFormat(config.Format), WithCaller(config.EnableCaller)), nil
}

// Zap exposes the underlying zap logger.
func (l *ZapLogger) Zap() *zap.Logger { return l.z }

func (l *ZapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, zapFields(fields)...) }
func (l *ZapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, zapFields(fields)...) }
func (l *ZapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, zapFields(fields)...) }
func (l *ZapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, zapFields(fields)...) }
func (l *ZapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, zapFields(fields)...) }

func (l *ZapLogger) Debugf(format string, args ...interface{}) { l.z.Sugar().Debugf(format, args...) }
func (l *ZapLogger) Infof(format string, args ...interface{})  { l.z.Sugar().Infof(format, args...) }
func (l *ZapLogger) Warnf(format string, args ...interface{})  { l.z.Sugar().Warnf(format, args...) }
func (l *ZapLogger) Errorf(format string, args ...interface{}) { l.z.Sugar().Errorf(format, args...) }

// WithField returns a new logger with the field added to it.
func (l *ZapLogger) WithField(key string, value interface{}) Logger {
	return l.With(Any(key, value))
}

// WithFields returns a new logger with the fields added to it.
func (l *ZapLogger) WithFields(fields Fields) Logger {
	if len(fields) == 0 {
		return l
	}
	fs := make([]Field, 0, len(fields))
	for k, v := range fields {
		fs = append(fs, Any(k, v))
	}
	return l.With(fs...)
}

// WithError returns a new logger with the error added as a field.
func (l *ZapLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.With(Err(err))
}

// With adds fields to the logger.
func (l *ZapLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &ZapLogger{z: l.z.With(zapFields(fields)...), level: l.level}
}

// WithContext returns a new logger with fields from the context.
func (l *ZapLogger) WithContext(ctx context.Context) Logger {
	return l.WithFields(ContextExtractor(ctx))
}

// WithComponent returns a new logger with the component field added.
func (l *ZapLogger) WithComponent(component string) Logger {
	return &ZapLogger{z: l.z.Named(component).With(zap.String(ComponentKey, component)), level: l.level}
}

// SetLevel sets the minimum log level.
func (l *ZapLogger) SetLevel(level Level) {
	l.level.SetLevel(toZapLevel(level))
}

// GetLevel returns the current minimum log level.
func (l *ZapLogger) GetLevel() Level {
	return fromZapLevel(l.level.Level())
}

func zapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func fromZapLevel(level zapcore.Level) Level {
	switch level {
	case zapcore.DebugLevel:
		return DebugLevel
	case zapcore.WarnLevel:
		return WarnLevel
	case zapcore.ErrorLevel:
		return ErrorLevel
	case zapcore.FatalLevel, zapcore.PanicLevel, zapcore.DPanicLevel:
		return FatalLevel
	default:
		return InfoLevel
	}
}
