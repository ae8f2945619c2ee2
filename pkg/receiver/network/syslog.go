package network

import (
	"strings"
	"time"

	syslog "gopkg.in/mcuadros/go-syslog.v2"
	"gopkg.in/mcuadros/go-syslog.v2/format"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
)

func syslogFormat(name string) format.Format {
	switch name {
	case FormatRFC3164:
		return syslog.RFC3164
	case FormatRFC5424:
		return syslog.RFC5424
	default:
		return syslog.Automatic
	}
}

// parseSyslog turns one syslog frame into a message with a Syslog payload.
func parseSyslog(f format.Format, text string, received time.Time) (*logmessage.LogMessage, error) {
	text = strings.TrimRight(text, "\r\n\x00")
	if strings.TrimSpace(text) == "" {
		return nil, errors.NewParseError("empty syslog frame", nil)
	}

	parser := f.GetParser([]byte(text))
	parser.Location(time.Local)
	if err := parser.Parse(); err != nil {
		return nil, errors.NewParseError("invalid syslog frame", err)
	}
	parts := parser.Dump()

	payload := logmessage.SyslogPayload{
		Facility: partInt(parts, "facility"),
		Severity: partInt(parts, "severity"),
		Hostname: partString(parts, "hostname"),
		AppName:  partString(parts, "app_name"),
		ProcID:   partString(parts, "proc_id"),
		MsgID:    partString(parts, "msg_id"),
	}
	if payload.AppName == "" {
		payload.AppName = partString(parts, "tag")
	}

	message := partString(parts, "message")
	if message == "" {
		message = partString(parts, "content")
	}

	timestamp, _ := parts["timestamp"].(time.Time)
	if timestamp.IsZero() {
		timestamp = received
	}
	payload.LocalTimestamp = timestamp.Local()

	msg := &logmessage.LogMessage{
		Timestamp:  timestamp,
		Level:      logmessage.SyslogSeverityToLevel(payload.Severity),
		Logger:     payload.AppName,
		Thread:     payload.ProcID,
		Message:    message,
		RawData:    text,
		ReceivedAt: received,
		Payload:    logmessage.NewSyslogPayload(payload),
	}
	if sd := partString(parts, "structured_data"); sd != "" && sd != "-" {
		msg.Properties = map[string]string{"structured_data": sd}
	}
	return msg, nil
}

func partString(parts format.LogParts, key string) string {
	s, _ := parts[key].(string)
	if s == "-" {
		return ""
	}
	return s
}

func partInt(parts format.LogParts, key string) int {
	n, _ := parts[key].(int)
	return n
}
