package logcollection

import (
	"fmt"
	"time"
)

// ===== FIELD TYPES (COMPLETE BACKEND HIDING) =====

// LogField represents a structured log field - completely independent of any backend
type LogField struct {
	Key   string
	Value interface{}
	Type  FieldType
}

// FieldType identifies how the field should be processed
type FieldType int

const (
	StringField FieldType = iota
	IntField
	Int64Field
	BoolField
	DurationField
	TimeField
	ErrorField
	ObjectField
)

// ===== FIELD CONSTRUCTORS =====

func String(key, value string) LogField {
	return LogField{Key: key, Value: value, Type: StringField}
}

func Int(key string, value int) LogField {
	return LogField{Key: key, Value: value, Type: IntField}
}

func Int64(key string, value int64) LogField {
	return LogField{Key: key, Value: value, Type: Int64Field}
}

func Bool(key string, value bool) LogField {
	return LogField{Key: key, Value: value, Type: BoolField}
}

func Duration(key string, value time.Duration) LogField {
	return LogField{Key: key, Value: value, Type: DurationField}
}

func Time(key string, value time.Time) LogField {
	return LogField{Key: key, Value: value, Type: TimeField}
}

// Error creates an error field (always uses "error" as key)
func Error(err error) LogField {
	return LogField{Key: "error", Value: err, Type: ErrorField}
}

// Object creates an object field for complex types
func Object(key string, value interface{}) LogField {
	return LogField{Key: key, Value: value, Type: ObjectField}
}

// ===== RECEIVER-SPECIFIC CONVENIENCE FIELDS =====

// Receiver creates a receiver_id field
func Receiver(receiverID string) LogField {
	return String("receiver_id", receiverID)
}

// Source creates a source field, e.g. a file path or a remote address
func Source(source string) LogField {
	return String("source", source)
}

// Component creates a component field
func Component(component string) LogField {
	return String("component", component)
}

// ===== FIELD UTILITIES =====

// Validate checks if the field has valid key and value
func (f LogField) Validate() error {
	if f.Key == "" {
		return fmt.Errorf("field key cannot be empty")
	}
	if f.Value == nil {
		return fmt.Errorf("field value cannot be nil for key %q", f.Key)
	}
	if f.Type == ErrorField {
		if _, ok := f.Value.(error); !ok {
			return fmt.Errorf("error field %q must have error value, got %T", f.Key, f.Value)
		}
	}
	return nil
}

func (f LogField) String() string {
	return fmt.Sprintf("%s=%v", f.Key, f.Value)
}

// formatFields renders fields as "[k=v k=v]" for loggers without field support
func formatFields(fields []LogField) string {
	result := "["
	for i, field := range fields {
		if i > 0 {
			result += " "
		}
		result += field.String()
	}
	return result + "]"
}
