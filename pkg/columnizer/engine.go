package columnizer

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
)

// Engine is a compiled Columnizer. It is immutable after NewEngine and may
// be shared by any number of goroutines.
type Engine struct {
	columnizer Columnizer
	pattern    *CompiledPattern
	dateFormat *DateFormat
	levels     []compiledLevel
}

type compiledLevel struct {
	level logmessage.Level
	re    *regexp.Regexp
}

// Fields holds the values extracted from one record, in column order.
type Fields struct {
	columns []Column
	values  []string
}

// Values returns the raw values in column order.
func (f Fields) Values() []string {
	return f.values
}

// Value returns the value of the named column.
func (f Fields) Value(name string) (string, bool) {
	for i, col := range f.columns {
		if col.Name == name {
			return f.values[i], true
		}
	}
	return "", false
}

// ByType returns the value of the first column of type t.
func (f Fields) ByType(t ColumnType) (string, bool) {
	for i, col := range f.columns {
		if col.Type == t {
			return f.values[i], true
		}
	}
	return "", false
}

// NewEngine validates and compiles c.
func NewEngine(c Columnizer) (*Engine, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	pattern, err := c.PatternBuilder().Compile()
	if err != nil {
		return nil, err
	}

	e := &Engine{columnizer: c, pattern: pattern}

	if c.DateTimeFormat != "" {
		if e.dateFormat, err = NewDateFormat(c.DateTimeFormat); err != nil {
			return nil, err
		}
	}

	for _, p := range c.LevelMapping.Ordered() {
		re, err := regexp.Compile(p.Expression)
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("level mapping for '%s' is invalid", p.Level), err)
		}
		e.levels = append(e.levels, compiledLevel{level: p.Level, re: re})
	}

	return e, nil
}

// Columnizer returns the definition the engine was built from.
func (e *Engine) Columnizer() Columnizer {
	return e.columnizer
}

// Pattern returns the composed expression.
func (e *Engine) Pattern() string {
	return e.pattern.String()
}

// HasColumn reports whether a column of type t is declared.
func (e *Engine) HasColumn(t ColumnType) bool {
	return e.columnizer.hasColumn(t)
}

// Match applies the composed pattern to one record.
func (e *Engine) Match(record string) (Fields, bool) {
	values, ok := e.pattern.Match(trimRecord(record))
	if !ok {
		return Fields{}, false
	}
	return Fields{columns: e.columnizer.Columns, values: values}, true
}

// Parse turns one record into a LogMessage. The returned message has no
// Index; the caller assigns it. received is used when the record has no
// usable timestamp.
func (e *Engine) Parse(record string, received time.Time) (*logmessage.LogMessage, error) {
	record = trimRecord(record)
	fields, ok := e.Match(record)
	if !ok {
		return nil, errors.NewParseError(fmt.Sprintf("record does not match columnizer '%s'", e.columnizer.Name), nil).
			WithContext("record", record)
	}

	msg := &logmessage.LogMessage{
		Timestamp:  received,
		Level:      logmessage.LevelInfo,
		RawData:    record,
		ReceivedAt: received,
		Payload:    logmessage.PlainPayload(),
	}

	var levelValue string
	messageSet := false
	for i, col := range e.columnizer.Columns {
		value := fields.values[i]
		switch col.Type {
		case ColumnTimestamp:
			if ts, ok := e.ParseTimestamp(value); ok {
				msg.Timestamp = ts
			}
		case ColumnLevel:
			levelValue = value
		case ColumnLogger:
			msg.Logger = value
		case ColumnThread:
			msg.Thread = value
		case ColumnMessage:
			if !messageSet {
				msg.Message = value
				messageSet = true
			}
		default:
			if msg.Properties == nil {
				msg.Properties = make(map[string]string)
			}
			msg.Properties[col.Name] = value
		}
	}
	if !messageSet {
		msg.Message = record
	}
	msg.Level = e.ResolveLevel(levelValue, record)

	return msg, nil
}

// ParseTimestamp parses value with the configured date format. Without a
// format RFC 3339 is tried.
func (e *Engine) ParseTimestamp(value string) (time.Time, bool) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, false
	}
	if e.dateFormat != nil {
		ts, err := e.dateFormat.Parse(value)
		return ts, err == nil
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	return ts, err == nil
}

// ResolveLevel picks a level from the level column value or, failing that,
// the first level mapping pattern matching the raw record.
func (e *Engine) ResolveLevel(value, record string) logmessage.Level {
	if level, ok := logmessage.ParseLevel(value); ok {
		return level
	}
	for _, l := range e.levels {
		if l.re.MatchString(record) {
			return l.level
		}
	}
	return logmessage.LevelInfo
}

func trimRecord(record string) string {
	return strings.TrimRight(record, "\r\n")
}
