package logmessage

import (
	"fmt"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
)

// Severity is a hint to the consumer about how to present a LogError.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// LogError reports a recoverable or terminal ingestion problem.
type LogError struct {
	Title    string
	Message  string
	Severity Severity
	Type     errors.ErrorType
	// Detail holds the offending record, if any.
	Detail string
	// Repeated is set on summaries: the number of identical occurrences
	// that were folded after the first one was delivered.
	Repeated int
	Time     time.Time
	Cause    error
}

func (e *LogError) Error() string {
	if e.Repeated > 0 {
		return fmt.Sprintf("%s: %s (repeated %d times)", e.Title, e.Message, e.Repeated)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Message)
}

func (e *LogError) Unwrap() error {
	return e.Cause
}

// Key identifies errors that are considered identical for collapsing.
// Errors about different records never share a key.
func (e *LogError) Key() string {
	return string(e.Type) + "\x00" + e.Title + "\x00" + e.Message + "\x00" + e.Detail
}

// NewLogError converts any error into a LogError. DomainError types pick
// the severity; everything else is reported as an internal error.
func NewLogError(title string, err error) *LogError {
	errType := errors.TypeOf(err)
	message := err.Error()
	if domainErr, ok := errors.AsDomainError(err); ok {
		message = domainErr.Message
		if domainErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", domainErr.Message, domainErr.Cause)
		}
	}
	return &LogError{
		Title:    title,
		Message:  message,
		Severity: SeverityFor(errType),
		Type:     errType,
		Time:     time.Now(),
		Cause:    err,
	}
}

// SeverityFor maps an error type to its default severity.
func SeverityFor(errType errors.ErrorType) Severity {
	switch errType {
	case errors.ErrorTypeFatalResource, errors.ErrorTypeValidation:
		return SeverityFatal
	case errors.ErrorTypeParse, errors.ErrorTypeIO, errors.ErrorTypeNetwork, errors.ErrorTypeTimeout:
		return SeverityWarning
	case errors.ErrorTypeCancelled:
		return SeverityInfo
	default:
		return SeverityError
	}
}
