package logmessage

import (
	"fmt"
	"strings"
)

// Level is the severity of a LogMessage. The order of the constants is
// the order in which level inference patterns are evaluated.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// Levels lists all levels from lowest to highest severity.
var Levels = []Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal}

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseLevel maps a level name or one of its common aliases to a Level.
// Matching is case-insensitive.
func ParseLevel(name string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "verbose", "finest":
		return LevelTrace, true
	case "debug", "fine":
		return LevelDebug, true
	case "info", "information", "notice":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error", "err":
		return LevelError, true
	case "fatal", "critical", "crit", "emergency", "alert":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	level, ok := ParseLevel(string(text))
	if !ok {
		return fmt.Errorf("unknown level %q", string(text))
	}
	*l = level
	return nil
}

// SyslogSeverityToLevel maps an RFC 5424 severity (0 emergency .. 7 debug)
// to a Level.
func SyslogSeverityToLevel(severity int) Level {
	switch {
	case severity <= 2:
		return LevelFatal
	case severity == 3:
		return LevelError
	case severity == 4:
		return LevelWarn
	case severity <= 6:
		return LevelInfo
	default:
		return LevelDebug
	}
}
