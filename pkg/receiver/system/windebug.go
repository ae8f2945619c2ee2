package system

import (
	"strings"

	"github.com/core-tools/hsu-logreceiver/pkg/codepage"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

// DefaultWinDebugCodepage is the ANSI codepage OutputDebugStringA text is
// usually written in.
const DefaultWinDebugCodepage = "windows-1252"

// WinDebugConfig configures a WinDebug source.
type WinDebugConfig struct {
	Codepage string `yaml:"codepage" toml:"codepage"`
}

// WinDebug captures OutputDebugString output of every process on the
// machine. Only one such monitor can run at a time. It is available on
// Windows only.
type WinDebug struct {
	config WinDebugConfig
	logger logging.Logger
}

func NewWinDebug(config WinDebugConfig, logger logging.Logger) *WinDebug {
	if config.Codepage == "" {
		config.Codepage = DefaultWinDebugCodepage
	}
	return &WinDebug{
		config: config,
		logger: logging.WithPrefix(logger, "windebug: "),
	}
}

func (w *WinDebug) DisplayInfo() string {
	return "Windows debug output"
}

func (w *WinDebug) Validate() error {
	if _, err := codepage.Lookup(w.config.Codepage); err != nil {
		return err
	}
	return validatePlatform()
}

func (w *WinDebug) Prepare() error {
	return nil
}

// emit forwards the lines of one debug string.
func (w *WinDebug) emit(p *receiver.Pipeline, decoder *codepage.Decoder, pid uint32, raw []byte) bool {
	text := decoder.Decode(raw) + decoder.Flush()
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		msg := newWinDebugMessage(pid, line)
		msg.Level = p.Engine().ResolveLevel("", line)
		if !p.Message(msg) {
			return false
		}
	}
	return true
}

func newWinDebugMessage(pid uint32, line string) *logmessage.LogMessage {
	return &logmessage.LogMessage{
		Level:   logmessage.LevelInfo,
		Message: line,
		RawData: line,
		Source:  "windebug",
		Payload: logmessage.NewWinDebugPayload(logmessage.WinDebugPayload{ProcessID: pid}),
	}
}
