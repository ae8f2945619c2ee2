package logcollection

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/core-tools/hsu-logreceiver/pkg/logcollection/config"
)

// ===== ZAP BACKEND ADAPTER =====

// ZapAdapter provides a Zap backend implementation that hides zap types from users
type ZapAdapter struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	level  zap.AtomicLevel
}

// NewZapAdapter creates a new Zap backend adapter
func NewZapAdapter(cfg ZapConfig) (*ZapAdapter, error) {
	zapLogger, level, err := createZapLogger(cfg)
	if err != nil {
		return nil, err
	}

	return &ZapAdapter{
		logger: zapLogger,
		sugar:  zapLogger.Sugar(),
		level:  level,
	}, nil
}

// ===== CONTEXT KEYS =====

type contextKey string

const receiverIDKey contextKey = "receiver_id"

// ContextWithReceiver tags ctx so that LogWithContext adds a receiver_id field.
func ContextWithReceiver(ctx context.Context, receiverID string) context.Context {
	return context.WithValue(ctx, receiverIDKey, receiverID)
}

func receiverFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(receiverIDKey).(string)
	return id, ok && id != ""
}

// ===== STRUCTURED LOGGER IMPLEMENTATION =====

func (z *ZapAdapter) Debugf(format string, args ...interface{}) {
	z.sugar.Debugf(format, args...)
}

func (z *ZapAdapter) Infof(format string, args ...interface{}) {
	z.sugar.Infof(format, args...)
}

func (z *ZapAdapter) Warnf(format string, args ...interface{}) {
	z.sugar.Warnf(format, args...)
}

func (z *ZapAdapter) Errorf(format string, args ...interface{}) {
	z.sugar.Errorf(format, args...)
}

// LogWithContext implements structured logging with context
func (z *ZapAdapter) LogWithContext(ctx context.Context, level LogLevel, msg string, fields ...LogField) {
	zapFields := z.convertFields(fields)
	if id, ok := receiverFromContext(ctx); ok {
		zapFields = append(zapFields, zap.String("receiver_id", id))
	}
	z.logAtLevel(level, msg, zapFields...)
}

// LogWithFields implements structured logging
func (z *ZapAdapter) LogWithFields(level LogLevel, msg string, fields ...LogField) {
	z.logAtLevel(level, msg, z.convertFields(fields)...)
}

// WithFields creates a new logger with additional fields
func (z *ZapAdapter) WithFields(fields ...LogField) StructuredLogger {
	newLogger := z.logger.With(z.convertFields(fields)...)

	return &ZapAdapter{
		logger: newLogger,
		sugar:  newLogger.Sugar(),
		level:  z.level,
	}
}

func (z *ZapAdapter) WithError(err error) StructuredLogger {
	return z.WithFields(Error(err))
}

func (z *ZapAdapter) WithReceiver(receiverID string) StructuredLogger {
	return z.WithFields(Receiver(receiverID))
}

// WithContext creates a new logger with the receiver id carried by ctx
func (z *ZapAdapter) WithContext(ctx context.Context) StructuredLogger {
	id, ok := receiverFromContext(ctx)
	if !ok {
		return z
	}
	return z.WithReceiver(id)
}

// ===== BACKEND INTERFACE IMPLEMENTATION =====

// LogWithLevel implements the LoggerBackend interface
func (z *ZapAdapter) LogWithLevel(level LogLevel, msg string, fields []LogField) {
	z.logAtLevel(level, msg, z.convertFields(fields)...)
}

// SetLevel changes the minimum level of this logger and every logger derived from it
func (z *ZapAdapter) SetLevel(level LogLevel) {
	z.level.SetLevel(toZapLevel(level))
}

// Sync flushes any buffered log entries
func (z *ZapAdapter) Sync() error {
	return z.logger.Sync()
}

// ===== INTERNAL CONVERSION METHODS =====

func (z *ZapAdapter) convertFields(fields []LogField) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, field := range fields {
		zapFields[i] = convertField(field)
	}
	return zapFields
}

func convertField(field LogField) zap.Field {
	switch v := field.Value.(type) {
	case string:
		return zap.String(field.Key, v)
	case int:
		return zap.Int(field.Key, v)
	case int64:
		return zap.Int64(field.Key, v)
	case bool:
		return zap.Bool(field.Key, v)
	case time.Duration:
		return zap.Duration(field.Key, v)
	case time.Time:
		return zap.Time(field.Key, v)
	case error:
		if field.Key == "error" {
			return zap.Error(v)
		}
		return zap.NamedError(field.Key, v)
	default:
		return zap.Any(field.Key, v)
	}
}

func (z *ZapAdapter) logAtLevel(level LogLevel, msg string, fields ...zap.Field) {
	switch level {
	case DebugLevel:
		z.logger.Debug(msg, fields...)
	case WarnLevel:
		z.logger.Warn(msg, fields...)
	case ErrorLevel:
		z.logger.Error(msg, fields...)
	default:
		z.logger.Info(msg, fields...)
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

// ===== ZAP CONFIGURATION =====

// ZapConfig defines Zap-specific configuration
type ZapConfig struct {
	Level      string                `json:"level"`  // "debug", "info", "warn", "error"
	Format     string                `json:"format"` // "json", "console"
	Output     string                `json:"output"` // "stdout", "stderr", file path
	Caller     bool                  `json:"caller"`
	Stacktrace bool                  `json:"stacktrace"`
	Rotation   config.RotationConfig `json:"rotation"` // applies to file output
}

func createZapLogger(cfg ZapConfig) (*zap.Logger, zap.AtomicLevel, error) {
	// zap v1.20 has no zapcore.ParseLevel
	level, err := getLevelFromString(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	atomicLevel := zap.NewAtomicLevelAt(level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default: // "json" or anything else
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var writeSyncer zapcore.WriteSyncer
	switch cfg.Output {
	case "stdout", "":
		writeSyncer = zapcore.Lock(os.Stdout)
	case "stderr":
		writeSyncer = zapcore.Lock(os.Stderr)
	default:
		writeSyncer = zapcore.AddSync(newRotatingFile(cfg.Output, cfg.Rotation))
	}

	core := zapcore.NewCore(encoder, writeSyncer, atomicLevel)

	opts := []zap.Option{}
	if cfg.Caller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.Stacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return zap.New(core, opts...), atomicLevel, nil
}

// newRotatingFile returns a lumberjack writer; it creates missing directories on first write
func newRotatingFile(path string, rotation config.RotationConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
		LocalTime:  true,
	}
}

func getLevelFromString(levelStr string) (zapcore.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zap.DebugLevel, nil
	case "info":
		return zap.InfoLevel, nil
	case "warn", "warning":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	case "fatal":
		return zap.FatalLevel, nil
	default:
		return -1, fmt.Errorf("invalid log level: %s", levelStr)
	}
}

// DefaultZapConfig returns a sensible default Zap configuration
func DefaultZapConfig() ZapConfig {
	return ZapConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		Caller:     true,
		Stacktrace: true,
	}
}
