package system

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
)

// journalField is a journal export value. journalctl writes fields with
// binary content as arrays of byte values instead of strings.
type journalField string

func (f *journalField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = journalField(s)
		return nil
	}
	var raw []byte
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		// Fields repeated in one entry come as arrays of strings.
		var many []string
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		if len(many) > 0 {
			*f = journalField(many[0])
		}
		return nil
	}
	for _, v := range values {
		raw = append(raw, byte(v))
	}
	*f = journalField(raw)
	return nil
}

type journalEntry struct {
	RealtimeTimestamp journalField `json:"__REALTIME_TIMESTAMP"`
	Priority          journalField `json:"PRIORITY"`
	Message           journalField `json:"MESSAGE"`
	SyslogIdentifier  journalField `json:"SYSLOG_IDENTIFIER"`
	SyslogFacility    journalField `json:"SYSLOG_FACILITY"`
	Comm              journalField `json:"_COMM"`
	SystemdUnit       journalField `json:"_SYSTEMD_UNIT"`
	PID               journalField `json:"_PID"`
	UID               journalField `json:"_UID"`
	Hostname          journalField `json:"_HOSTNAME"`
	Transport         journalField `json:"_TRANSPORT"`
}

// parseJournalEntry converts one line of `journalctl -o json` output.
func parseJournalEntry(line string, received time.Time) (*logmessage.LogMessage, error) {
	var entry journalEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return nil, errors.NewParseError("invalid journal entry", err)
	}

	timestamp := received
	if usec, err := strconv.ParseInt(string(entry.RealtimeTimestamp), 10, 64); err == nil {
		timestamp = time.UnixMicro(usec)
	}

	level := logmessage.LevelInfo
	if priority, err := strconv.Atoi(string(entry.Priority)); err == nil {
		level = logmessage.SyslogSeverityToLevel(priority)
	}

	logger := string(entry.SyslogIdentifier)
	if logger == "" {
		logger = string(entry.Comm)
	}

	pid, _ := strconv.ParseInt(string(entry.PID), 10, 64)

	properties := map[string]string{}
	for key, value := range map[string]journalField{
		"unit":      entry.SystemdUnit,
		"hostname":  entry.Hostname,
		"transport": entry.Transport,
	} {
		if value != "" {
			properties[key] = string(value)
		}
	}

	return &logmessage.LogMessage{
		Timestamp:  timestamp,
		Level:      level,
		Logger:     logger,
		Thread:     string(entry.PID),
		Message:    string(entry.Message),
		RawData:    line,
		Source:     "journal",
		ReceivedAt: received,
		Properties: properties,
		Payload: logmessage.NewEventLogPayload(logmessage.EventLogPayload{
			InstanceID: pid,
			Category:   string(entry.SyslogFacility),
			Username:   string(entry.UID),
			Data:       []byte(line),
		}),
	}, nil
}
