package logcollection

import (
	"context"
	"fmt"

	"github.com/core-tools/hsu-logreceiver/pkg/logcollection/config"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
)

// ===== PUBLIC FACTORY FUNCTIONS =====

// NewStructuredLogger creates a new structured logger with the specified backend
func NewStructuredLogger(backendType string, level LogLevel) (StructuredLogger, error) {
	cfg := DefaultLoggerConfig()
	cfg.Backend = backendType
	cfg.Level = level
	return NewStructuredLoggerWithConfig(cfg)
}

// NewStructuredLoggerWithConfig creates a new structured logger with detailed configuration
func NewStructuredLoggerWithConfig(cfg LoggerConfig) (StructuredLogger, error) {
	switch cfg.Backend {
	case "zap", "":
		return NewZapAdapter(ZapConfig{
			Level:      cfg.Level.String(),
			Format:     cfg.Format,
			Output:     cfg.Output,
			Caller:     cfg.Caller,
			Stacktrace: cfg.Stacktrace,
			Rotation:   cfg.Rotation,
		})
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Backend)
	}
}

// ===== CONFIGURATION TYPES FOR FACTORY =====

// LoggerConfig defines configuration for creating a structured logger
type LoggerConfig struct {
	Backend    string                `yaml:"backend"` // "zap"
	Level      LogLevel              `yaml:"level"`
	Format     string                `yaml:"format"` // "json", "console"
	Output     string                `yaml:"output"` // "stdout", "stderr", file path
	Caller     bool                  `yaml:"caller"`
	Stacktrace bool                  `yaml:"stacktrace"`
	Rotation   config.RotationConfig `yaml:"rotation"`
}

// DefaultLoggerConfig returns a sensible default logger configuration
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Backend:    "zap",
		Level:      InfoLevel,
		Format:     "json",
		Output:     "stdout",
		Caller:     true,
		Stacktrace: true,
		Rotation: config.RotationConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// ParseLevel maps a configuration level name to a LogLevel
func ParseLevel(name string) LogLevel {
	switch logging.ParseLogLevel(name) {
	case logging.LogLevelDebug:
		return DebugLevel
	case logging.LogLevelWarn:
		return WarnLevel
	case logging.LogLevelError:
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// ===== CONVENIENCE FUNCTIONS =====

// ProductionLogger creates a JSON logger writing to a rotated file
func ProductionLogger(outputPath string) (StructuredLogger, error) {
	cfg := DefaultLoggerConfig()
	cfg.Output = outputPath
	cfg.Caller = false
	return NewStructuredLoggerWithConfig(cfg)
}

// DevelopmentLogger creates a logger optimized for development
func DevelopmentLogger() (StructuredLogger, error) {
	cfg := DefaultLoggerConfig()
	cfg.Level = DebugLevel
	cfg.Format = "console"
	return NewStructuredLoggerWithConfig(cfg)
}

// ===== INTEGRATION HELPERS =====

// CreateLoggerForReceiver creates a logger instance specifically for a receiver
func CreateLoggerForReceiver(receiverID, receiverType string, baseLogger StructuredLogger) StructuredLogger {
	return baseLogger.WithReceiver(receiverID).WithFields(
		Component("receiver"),
		String("receiver_type", receiverType),
	)
}

// CreateLoggerForAgent creates a logger instance specifically for the agent
func CreateLoggerForAgent(agentName string, baseLogger StructuredLogger) StructuredLogger {
	return baseLogger.WithFields(
		String("agent", agentName),
		Component("agent"),
	)
}

// CreateLoggerForComponent creates a logger instance for a specific component
func CreateLoggerForComponent(component string, baseLogger StructuredLogger) StructuredLogger {
	return baseLogger.WithFields(
		Component(component),
		String("subsystem", "hsu-logreceiver"),
	)
}

// ===== VALIDATION HELPERS =====

// ValidateLoggerConfig validates a logger configuration
func ValidateLoggerConfig(cfg LoggerConfig) error {
	if cfg.Backend != "zap" && cfg.Backend != "" {
		return fmt.Errorf("invalid backend: %s", cfg.Backend)
	}

	validFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validFormats[cfg.Format] {
		return fmt.Errorf("invalid format: %s", cfg.Format)
	}

	if cfg.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// ===== BRIDGES =====

// NewLoggingAdapter exposes a StructuredLogger as a logging.Logger with
// the given message prefix, for components that take the simple interface.
func NewLoggingAdapter(base StructuredLogger, prefix string) logging.Logger {
	return logging.NewLogger(prefix, logging.LogFuncs{
		Debugf: base.Debugf,
		Infof:  base.Infof,
		Warnf:  base.Warnf,
		Errorf: base.Errorf,
	})
}

// WrapExistingLogger wraps a simple logger to provide structured capabilities
func WrapExistingLogger(simpleLogger SimpleLogger) StructuredLogger {
	return &simpleLoggerWrapper{logger: simpleLogger}
}

// SimpleLogger is the subset of logging.Logger the wrapper needs
type SimpleLogger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// simpleLoggerWrapper renders fields inline since the wrapped logger has no field support
type simpleLoggerWrapper struct {
	logger SimpleLogger
	fields []LogField
}

func (w *simpleLoggerWrapper) Debugf(format string, args ...interface{}) {
	w.LogWithFields(DebugLevel, fmt.Sprintf(format, args...))
}

func (w *simpleLoggerWrapper) Infof(format string, args ...interface{}) {
	w.LogWithFields(InfoLevel, fmt.Sprintf(format, args...))
}

func (w *simpleLoggerWrapper) Warnf(format string, args ...interface{}) {
	w.LogWithFields(WarnLevel, fmt.Sprintf(format, args...))
}

func (w *simpleLoggerWrapper) Errorf(format string, args ...interface{}) {
	w.LogWithFields(ErrorLevel, fmt.Sprintf(format, args...))
}

func (w *simpleLoggerWrapper) LogWithContext(ctx context.Context, level LogLevel, msg string, fields ...LogField) {
	if id, ok := receiverFromContext(ctx); ok {
		fields = append(fields, Receiver(id))
	}
	w.LogWithFields(level, msg, fields...)
}

func (w *simpleLoggerWrapper) LogWithFields(level LogLevel, msg string, fields ...LogField) {
	all := append(append([]LogField(nil), w.fields...), fields...)
	if len(all) > 0 {
		msg = msg + " " + formatFields(all)
	}

	switch level {
	case DebugLevel:
		w.logger.Debugf("%s", msg)
	case WarnLevel:
		w.logger.Warnf("%s", msg)
	case ErrorLevel:
		w.logger.Errorf("%s", msg)
	default:
		w.logger.Infof("%s", msg)
	}
}

func (w *simpleLoggerWrapper) WithFields(fields ...LogField) StructuredLogger {
	return &simpleLoggerWrapper{
		logger: w.logger,
		fields: append(append([]LogField(nil), w.fields...), fields...),
	}
}

func (w *simpleLoggerWrapper) WithError(err error) StructuredLogger {
	return w.WithFields(Error(err))
}

func (w *simpleLoggerWrapper) WithReceiver(receiverID string) StructuredLogger {
	return w.WithFields(Receiver(receiverID))
}

func (w *simpleLoggerWrapper) WithContext(ctx context.Context) StructuredLogger {
	if id, ok := receiverFromContext(ctx); ok {
		return w.WithReceiver(id)
	}
	return w
}
