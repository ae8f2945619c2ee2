package network

import (
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
)

// log4jEvent is the XML layout sent by log4j and log4net UDP appenders.
// The log4j: prefix is usually undeclared, so elements match on local
// names only.
type log4jEvent struct {
	Logger     string      `xml:"logger,attr"`
	Timestamp  int64       `xml:"timestamp,attr"`
	Level      string      `xml:"level,attr"`
	Thread     string      `xml:"thread,attr"`
	Message    string      `xml:"message"`
	Throwable  string      `xml:"throwable"`
	Properties []log4jData `xml:"properties>data"`
}

type log4jData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// parseLog4jEvents reads every event element of one datagram.
func parseLog4jEvents(text string, received time.Time) ([]*logmessage.LogMessage, error) {
	decoder := xml.NewDecoder(strings.NewReader(text))
	decoder.Strict = false

	var msgs []*logmessage.LogMessage
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewParseError("invalid log4j xml", err)
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "event" {
			continue
		}
		var event log4jEvent
		if err := decoder.DecodeElement(&event, &start); err != nil {
			return nil, errors.NewParseError("invalid log4j event", err)
		}
		msgs = append(msgs, event.toMessage(text, received))
	}
	if len(msgs) == 0 {
		return nil, errors.NewParseError("no log4j event in datagram", nil)
	}
	return msgs, nil
}

func (e log4jEvent) toMessage(raw string, received time.Time) *logmessage.LogMessage {
	level, _ := logmessage.ParseLevel(e.Level)

	timestamp := received
	if e.Timestamp > 0 {
		timestamp = time.UnixMilli(e.Timestamp)
	}

	var properties map[string]string
	if len(e.Properties) > 0 || e.Throwable != "" {
		properties = make(map[string]string, len(e.Properties)+1)
		for _, data := range e.Properties {
			properties[data.Name] = data.Value
		}
		if e.Throwable != "" {
			properties["throwable"] = strings.TrimSpace(e.Throwable)
		}
	}

	payload := logmessage.Log4NetPayload{
		HostName: firstProperty(properties, "log4net:HostName", "log4jmachinename"),
		AppName:  firstProperty(properties, "log4japp"),
		Username: firstProperty(properties, "log4net:UserName"),
	}

	return &logmessage.LogMessage{
		Timestamp:  timestamp,
		Level:      level,
		Logger:     e.Logger,
		Thread:     e.Thread,
		Message:    e.Message,
		RawData:    raw,
		ReceivedAt: received,
		Properties: properties,
		Payload:    logmessage.NewLog4NetPayload(payload),
	}
}

func firstProperty(properties map[string]string, names ...string) string {
	for _, name := range names {
		if v := properties[name]; v != "" {
			return v
		}
	}
	return ""
}
