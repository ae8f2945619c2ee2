package logcollection

import (
	"context"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/logcollection/config"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

// ===== STRUCTURED LOGGING =====

// StructuredLogger provides clean logging interface with complete backend hiding
type StructuredLogger interface {
	// Simple logging (compatible with logging.Logger)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// Structured logging with our own types (no backend exposure)
	LogWithContext(ctx context.Context, level LogLevel, msg string, fields ...LogField)
	LogWithFields(level LogLevel, msg string, fields ...LogField)

	// Fluent interface for building context
	WithFields(fields ...LogField) StructuredLogger
	WithError(err error) StructuredLogger
	WithReceiver(receiverID string) StructuredLogger
	WithContext(ctx context.Context) StructuredLogger
}

// LoggerBackend provides internal interface for different logging backends
type LoggerBackend interface {
	LogWithLevel(level LogLevel, msg string, fields []LogField)
	SetLevel(level LogLevel)
	Sync() error
}

// ===== OUTPUT SERVICE =====

// OutputService consumes what receivers produce and writes it to the
// configured targets.
type OutputService interface {
	Start(ctx context.Context) error
	Stop() error

	// Handler registers receiverID and returns the handler to pass to
	// its Initialize.
	Handler(receiverID string) (receiver.Handler, error)
	Unregister(receiverID string) error

	Flush() error

	GetConfiguration() config.OutputConfig
	GetReceiverStatus(receiverID string) (*ReceiverOutputStatus, error)
	GetSystemStatus() *SystemOutputStatus
}

// LogOutputWriter handles writing entries to one target
type LogOutputWriter interface {
	Write(entry OutputEntry) error
	Flush() error
	Close() error
}

// ===== CORE TYPES =====

// LogLevel represents logging levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// OutputEntry is a message or error ready for a writer
type OutputEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Level      string    `json:"level"`
	Logger     string    `json:"logger,omitempty"`
	Message    string    `json:"message"`
	ReceiverID string    `json:"receiver_id"`
	Source     string    `json:"source,omitempty"`
	Raw        string    `json:"raw_line,omitempty"`
}

// ===== STATUS TYPES =====

// ReceiverOutputStatus provides status information for one receiver
type ReceiverOutputStatus struct {
	ReceiverID      string    `json:"receiver_id"`
	Active          bool      `json:"active"`
	MessagesWritten int64     `json:"messages_written"`
	BytesWritten    int64     `json:"bytes_written"`
	ErrorsReported  int64     `json:"errors_reported"`
	LastActivity    time.Time `json:"last_activity"`
	Errors          []string  `json:"errors,omitempty"`
}

// SystemOutputStatus provides overall output status
type SystemOutputStatus struct {
	Active         bool                             `json:"active"`
	TotalReceivers int                              `json:"total_receivers"`
	TotalMessages  int64                            `json:"total_messages"`
	TotalErrors    int64                            `json:"total_errors"`
	TotalBytes     int64                            `json:"total_bytes"`
	WriteFailures  int64                            `json:"write_failures"`
	StartTime      time.Time                        `json:"start_time"`
	LastActivity   time.Time                        `json:"last_activity"`
	Receivers      map[string]*ReceiverOutputStatus `json:"receivers"`
	OutputTargets  []string                         `json:"output_targets"`
}
