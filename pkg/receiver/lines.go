package receiver

import (
	"strings"

	"github.com/core-tools/hsu-logreceiver/pkg/codepage"
)

// MaxLineLength bounds a partial line. Longer input is cut into records
// of this size.
const MaxLineLength = 1 << 20

// LineSplitter reassembles newline-terminated records from text chunks.
// Blank lines are dropped and a trailing '\r' is removed.
type LineSplitter struct {
	partial strings.Builder
}

// Feed appends text and returns every line completed by it.
func (s *LineSplitter) Feed(text string) []string {
	var lines []string
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			break
		}
		s.partial.WriteString(text[:i])
		lines = appendLine(lines, s.partial.String())
		s.partial.Reset()
		text = text[i+1:]
	}
	s.partial.WriteString(text)
	for s.partial.Len() > MaxLineLength {
		rest := s.partial.String()
		lines = appendLine(lines, rest[:MaxLineLength])
		s.partial.Reset()
		s.partial.WriteString(rest[MaxLineLength:])
	}
	return lines
}

// Flush returns the unterminated remainder, if any.
func (s *LineSplitter) Flush() (string, bool) {
	line := strings.TrimRight(s.partial.String(), "\r")
	s.partial.Reset()
	if strings.TrimSpace(line) == "" {
		return "", false
	}
	return line, true
}

// Pending returns the length of the unterminated remainder.
func (s *LineSplitter) Pending() int {
	return s.partial.Len()
}

// Reset drops the unterminated remainder.
func (s *LineSplitter) Reset() {
	s.partial.Reset()
}

func appendLine(lines []string, line string) []string {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return lines
	}
	return append(lines, line)
}

// LineDecoder turns raw bytes of one stream into records: bytes are
// decoded with a codepage first and split afterwards.
type LineDecoder struct {
	decoder  *codepage.Decoder
	splitter LineSplitter
}

func NewLineDecoder(codepageName string) (*LineDecoder, error) {
	decoder, err := codepage.NewDecoder(codepageName)
	if err != nil {
		return nil, err
	}
	return &LineDecoder{decoder: decoder}, nil
}

// Feed returns the records completed by chunk.
func (d *LineDecoder) Feed(chunk []byte) []string {
	return d.splitter.Feed(d.decoder.Decode(chunk))
}

// Close flushes the decoder and returns the final unterminated record.
func (d *LineDecoder) Close() []string {
	lines := d.splitter.Feed(d.decoder.Flush())
	if last, ok := d.splitter.Flush(); ok {
		lines = append(lines, last)
	}
	return lines
}

// Reset forgets all buffered bytes.
func (d *LineDecoder) Reset() {
	d.decoder.Reset()
	d.splitter.Reset()
}
