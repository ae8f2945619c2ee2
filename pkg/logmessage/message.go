package logmessage

import "time"

// PayloadKind discriminates the protocol-specific part of a LogMessage.
type PayloadKind string

const (
	KindPlain    PayloadKind = "plain"
	KindLog4Net  PayloadKind = "log4net"
	KindSyslog   PayloadKind = "syslog"
	KindEventLog PayloadKind = "eventlog"
	KindWinDebug PayloadKind = "windebug"
)

// SyslogPayload carries the syslog header fields of a datagram.
type SyslogPayload struct {
	Facility       int
	Severity       int
	Hostname       string
	AppName        string
	ProcID         string
	MsgID          string
	LocalTimestamp time.Time
}

// EventLogPayload carries operating system event log fields.
type EventLogPayload struct {
	InstanceID int64
	Category   string
	Username   string
	Data       []byte
}

// WinDebugPayload carries the emitting process of an OutputDebugString call.
type WinDebugPayload struct {
	ProcessID uint32
}

// Log4NetPayload carries the well-known properties of a log4j/log4net XML event.
type Log4NetPayload struct {
	HostName string
	AppName  string
	Username string
}

// Payload is a tagged union: exactly the pointer matching Kind is set,
// and none for KindPlain.
type Payload struct {
	Kind     PayloadKind
	Syslog   *SyslogPayload
	EventLog *EventLogPayload
	WinDebug *WinDebugPayload
	Log4Net  *Log4NetPayload
}

// PlainPayload returns the payload of messages produced by a columnizer.
func PlainPayload() Payload {
	return Payload{Kind: KindPlain}
}

func NewSyslogPayload(p SyslogPayload) Payload {
	return Payload{Kind: KindSyslog, Syslog: &p}
}

func NewEventLogPayload(p EventLogPayload) Payload {
	return Payload{Kind: KindEventLog, EventLog: &p}
}

func NewWinDebugPayload(p WinDebugPayload) Payload {
	return Payload{Kind: KindWinDebug, WinDebug: &p}
}

func NewLog4NetPayload(p Log4NetPayload) Payload {
	return Payload{Kind: KindLog4Net, Log4Net: &p}
}

// LogMessage is one structured record. It is built once by a receiver
// and must be treated as read-only by handlers; WithTimeShift is the only
// way to obtain an adjusted variant.
type LogMessage struct {
	Index      uint64
	Timestamp  time.Time
	Level      Level
	Logger     string
	Thread     string
	Message    string
	RawData    string
	Source     string
	ReceivedAt time.Time
	Properties map[string]string
	Payload    Payload

	// TimeShift is the offset already applied to Timestamp.
	TimeShift time.Duration
}

// WithTimeShift returns a copy whose Timestamp is the original timestamp
// moved by shift. Shifts are absolute, not cumulative.
func (m *LogMessage) WithTimeShift(shift time.Duration) *LogMessage {
	shifted := *m
	shifted.Timestamp = m.Timestamp.Add(shift - m.TimeShift)
	shifted.TimeShift = shift
	if m.Properties != nil {
		shifted.Properties = make(map[string]string, len(m.Properties))
		for k, v := range m.Properties {
			shifted.Properties[k] = v
		}
	}
	return &shifted
}

// OriginalTimestamp returns the timestamp before any time shift.
func (m *LogMessage) OriginalTimestamp() time.Time {
	return m.Timestamp.Add(-m.TimeShift)
}

// Property returns the value of an Unknown-typed column or payload property.
func (m *LogMessage) Property(name string) string {
	if m.Properties == nil {
		return ""
	}
	return m.Properties[name]
}
