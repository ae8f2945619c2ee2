package columnizer

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
)

// DateFormat converts a culture-invariant custom date and time format
// string ("yyyy-MM-dd HH:mm:ss.fff") into a Go reference layout.
type DateFormat struct {
	source string
	layout string
}

type dateToken struct {
	pattern string
	layout  string
}

// Longest tokens first so that "yyyy" wins over "yy".
var dateTokens = []dateToken{
	{"yyyy", "2006"},
	{"yyy", "2006"},
	{"yy", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"dddd", "Monday"},
	{"ddd", "Mon"},
	{"dd", "02"},
	{"d", "2"},
	{"HH", "15"},
	{"H", "15"},
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"m", "4"},
	{"ss", "05"},
	{"s", "5"},
	{"tt", "PM"},
	{"zzz", "-07:00"},
	{"zz", "-07"},
	{"z", "-07"},
	{"K", "Z07:00"},
}

const reservedDateLetters = "dfFghHKmMstyz"

// Words that the time package would read as layout elements if they
// appeared as literal text.
var layoutWords = []string{"Jan", "Mon", "MST", "PM", "pm", "Z07"}

// NewDateFormat converts format. It fails when the format uses an element
// that has no layout equivalent.
func NewDateFormat(format string) (*DateFormat, error) {
	layout, err := convertDateFormat(format)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported date format '%s'", format), err)
	}
	return &DateFormat{source: format, layout: layout}, nil
}

// Layout returns the Go reference layout.
func (f *DateFormat) Layout() string {
	return f.layout
}

func (f *DateFormat) String() string {
	return f.source
}

// Format renders t with the format.
func (f *DateFormat) Format(t time.Time) string {
	return t.Format(f.layout)
}

// Parse reads value in the local time zone unless the format carries an
// offset.
func (f *DateFormat) Parse(value string) (time.Time, error) {
	return time.ParseInLocation(f.layout, strings.TrimSpace(value), time.Local)
}

func convertDateFormat(format string) (string, error) {
	if format == "" {
		return "", fmt.Errorf("empty format")
	}

	var out strings.Builder
	runes := []rune(format)
	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case r == '\'' || r == '"':
			end := i + 1
			for end < len(runes) && runes[end] != r {
				end++
			}
			if end >= len(runes) {
				return "", fmt.Errorf("unterminated quote at %d", i)
			}
			if err := writeLiteral(&out, string(runes[i+1:end])); err != nil {
				return "", err
			}
			i = end + 1
			continue
		case r == '\\':
			if i+1 >= len(runes) {
				return "", fmt.Errorf("dangling escape")
			}
			if err := writeLiteral(&out, string(runes[i+1])); err != nil {
				return "", err
			}
			i += 2
			continue
		case r == 'f' || r == 'F':
			n := countRun(runes, i, r)
			if n > 9 {
				return "", fmt.Errorf("too many fraction digits")
			}
			digit := "0"
			if r == 'F' {
				digit = "9"
			}
			if !strings.HasSuffix(out.String(), ".") && !strings.HasSuffix(out.String(), ",") {
				return "", fmt.Errorf("fraction must follow '.' or ','")
			}
			out.WriteString(strings.Repeat(digit, n))
			i += n
			continue
		case r == 'g':
			return "", fmt.Errorf("era designator is not supported")
		}

		if token, ok := matchDateToken(runes, i); ok {
			out.WriteString(token.layout)
			i += len([]rune(token.pattern))
			continue
		}

		if strings.ContainsRune(reservedDateLetters, r) {
			return "", fmt.Errorf("unsupported format element '%c'", r)
		}
		if err := writeLiteral(&out, string(r)); err != nil {
			return "", err
		}
		i++
	}
	return out.String(), nil
}

// Longest run accepted per element letter.
var maxTokenRun = map[rune]int{
	'y': 4, 'M': 4, 'd': 4, 'H': 2, 'h': 2, 'm': 2, 's': 2, 't': 2, 'z': 3, 'K': 1,
}

func matchDateToken(runes []rune, i int) (dateToken, bool) {
	if max, ok := maxTokenRun[runes[i]]; !ok || countRun(runes, i, runes[i]) > max {
		return dateToken{}, false
	}
	rest := string(runes[i:])
	for _, token := range dateTokens {
		if strings.HasPrefix(rest, token.pattern) {
			return token, true
		}
	}
	return dateToken{}, false
}

func countRun(runes []rune, i int, r rune) int {
	n := 0
	for i+n < len(runes) && runes[i+n] == r {
		n++
	}
	return n
}

func writeLiteral(out *strings.Builder, literal string) error {
	for _, r := range literal {
		if unicode.IsDigit(r) {
			return fmt.Errorf("literal digits are not supported: %q", literal)
		}
	}
	for _, word := range layoutWords {
		if strings.Contains(literal, word) {
			return fmt.Errorf("literal %q collides with a layout element", literal)
		}
	}
	out.WriteString(literal)
	return nil
}
