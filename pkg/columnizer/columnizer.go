package columnizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
)

// ColumnType tells the engine which LogMessage field a column fills.
type ColumnType string

const (
	ColumnUnknown   ColumnType = "unknown"
	ColumnTimestamp ColumnType = "timestamp"
	ColumnLevel     ColumnType = "level"
	ColumnLogger    ColumnType = "logger"
	ColumnThread    ColumnType = "thread"
	ColumnMessage   ColumnType = "message"
)

func (t ColumnType) valid() bool {
	switch t {
	case ColumnUnknown, ColumnTimestamp, ColumnLevel, ColumnLogger, ColumnThread, ColumnMessage, "":
		return true
	default:
		return false
	}
}

// Column is one field of a record. Prefix and Suffix are matched around
// the value but are not part of it; for optional columns they are absent
// together with the value.
type Column struct {
	Name       string     `yaml:"name" toml:"name"`
	Expression string     `yaml:"expression" toml:"expression"`
	Optional   bool       `yaml:"optional,omitempty" toml:"optional,omitempty"`
	Type       ColumnType `yaml:"type,omitempty" toml:"type,omitempty"`
	Prefix     string     `yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	Suffix     string     `yaml:"suffix,omitempty" toml:"suffix,omitempty"`
}

// LevelMapping holds one inference pattern per level. Patterns are tried
// against the whole raw record from Trace to Fatal.
type LevelMapping struct {
	Trace string `yaml:"trace,omitempty" toml:"trace,omitempty"`
	Debug string `yaml:"debug,omitempty" toml:"debug,omitempty"`
	Info  string `yaml:"info,omitempty" toml:"info,omitempty"`
	Warn  string `yaml:"warn,omitempty" toml:"warn,omitempty"`
	Error string `yaml:"error,omitempty" toml:"error,omitempty"`
	Fatal string `yaml:"fatal,omitempty" toml:"fatal,omitempty"`
}

// LevelPattern pairs a level with its inference expression.
type LevelPattern struct {
	Level      logmessage.Level
	Expression string
}

// Ordered returns the configured patterns in evaluation order, skipping
// empty ones.
func (m LevelMapping) Ordered() []LevelPattern {
	all := []LevelPattern{
		{logmessage.LevelTrace, m.Trace},
		{logmessage.LevelDebug, m.Debug},
		{logmessage.LevelInfo, m.Info},
		{logmessage.LevelWarn, m.Warn},
		{logmessage.LevelError, m.Error},
		{logmessage.LevelFatal, m.Fatal},
	}
	ordered := make([]LevelPattern, 0, len(all))
	for _, p := range all {
		if p.Expression != "" {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// Columnizer is the declarative description of a record layout.
type Columnizer struct {
	Name           string       `yaml:"name" toml:"name"`
	DateTimeFormat string       `yaml:"date_time_format" toml:"date_time_format"`
	Columns        []Column     `yaml:"columns" toml:"columns"`
	LevelMapping   LevelMapping `yaml:"level_mapping,omitempty" toml:"level_mapping,omitempty"`
}

// Validate reports every problem in the columnizer at once.
func (c Columnizer) Validate() error {
	collection := errors.NewErrorCollection()

	if len(c.Columns) == 0 {
		collection.Add(errors.NewValidationError("columnizer must declare at least one column", nil).
			WithContext("columnizer", c.Name))
	}

	seen := make(map[string]bool, len(c.Columns))
	for i, col := range c.Columns {
		if strings.TrimSpace(col.Name) == "" {
			collection.Add(errors.NewValidationError(fmt.Sprintf("column %d has no name", i), nil))
		} else if seen[col.Name] {
			collection.Add(errors.NewValidationError(fmt.Sprintf("duplicate column name '%s'", col.Name), nil))
		}
		seen[col.Name] = true

		if col.Expression == "" {
			collection.Add(errors.NewValidationError(fmt.Sprintf("column '%s' has no expression", col.Name), nil))
		}
		if !col.Type.valid() {
			collection.Add(errors.NewValidationError(fmt.Sprintf("column '%s' has unknown type '%s'", col.Name, col.Type), nil))
		}
		for _, fragment := range []string{col.Prefix, col.Expression, col.Suffix} {
			if _, err := regexp.Compile(fragment); err != nil {
				collection.Add(errors.NewValidationError(fmt.Sprintf("column '%s' has an invalid expression", col.Name), err).
					WithContext("fragment", fragment))
			}
		}
	}

	if c.hasColumn(ColumnTimestamp) && c.DateTimeFormat != "" {
		if _, err := NewDateFormat(c.DateTimeFormat); err != nil {
			collection.Add(err)
		}
	}

	for _, p := range c.LevelMapping.Ordered() {
		if _, err := regexp.Compile(p.Expression); err != nil {
			collection.Add(errors.NewValidationError(fmt.Sprintf("level mapping for '%s' is invalid", p.Level), err))
		}
	}

	if !collection.HasErrors() {
		if _, err := c.PatternBuilder().Compile(); err != nil {
			collection.Add(err)
		}
	}

	return collection.ToError()
}

func (c Columnizer) hasColumn(t ColumnType) bool {
	for _, col := range c.Columns {
		if col.Type == t {
			return true
		}
	}
	return false
}

// PatternBuilder returns a builder populated with the columns in order.
func (c Columnizer) PatternBuilder() *PatternBuilder {
	b := NewPatternBuilder()
	for _, col := range c.Columns {
		b.Add(Fragment{
			Prefix:     col.Prefix,
			Expression: col.Expression,
			Suffix:     col.Suffix,
			Optional:   col.Optional,
		})
	}
	return b
}

// DefaultColumnizer matches lines such as
// "2024-01-15 10:30:45 [INFO] MyApp.Service - started".
func DefaultColumnizer() Columnizer {
	return Columnizer{
		Name:           "default",
		DateTimeFormat: "yyyy-MM-dd HH:mm:ss",
		Columns: []Column{
			{Name: "timestamp", Type: ColumnTimestamp, Expression: `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:[.,]\d+)?`},
			{Name: "level", Type: ColumnLevel, Prefix: ` \[`, Expression: `[A-Za-z]+`, Suffix: `\]`},
			{Name: "logger", Type: ColumnLogger, Prefix: ` `, Expression: `\S+`, Suffix: ` -`},
			{Name: "message", Type: ColumnMessage, Prefix: ` ?`, Expression: `.*`},
		},
		LevelMapping: DefaultLevelMapping(),
	}
}

// PlainColumnizer treats every line as a message.
func PlainColumnizer() Columnizer {
	return Columnizer{
		Name:         "plain",
		Columns:      []Column{{Name: "message", Type: ColumnMessage, Expression: `.*`}},
		LevelMapping: DefaultLevelMapping(),
	}
}

// DefaultLevelMapping recognises the usual level words anywhere in a line.
func DefaultLevelMapping() LevelMapping {
	return LevelMapping{
		Trace: `(?i)\b(trace|verbose)\b`,
		Debug: `(?i)\bdebug\b`,
		Info:  `(?i)\binfo(rmation)?\b`,
		Warn:  `(?i)\bwarn(ing)?\b`,
		Error: `(?i)\b(error|err)\b`,
		Fatal: `(?i)\b(fatal|critical)\b`,
	}
}
