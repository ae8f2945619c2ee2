// Package codepage resolves configured codepages to x/text encodings and
// decodes byte streams that may split multibyte sequences across reads.
package codepage

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
)

// Default is used when no codepage is configured.
const Default = "utf-8"

var windowsCodepages = map[int]encoding.Encoding{
	437:   charmap.CodePage437,
	850:   charmap.CodePage850,
	852:   charmap.CodePage852,
	855:   charmap.CodePage855,
	866:   charmap.CodePage866,
	874:   charmap.Windows874,
	932:   japanese.ShiftJIS,
	936:   simplifiedchinese.GBK,
	949:   korean.EUCKR,
	950:   traditionalchinese.Big5,
	1200:  unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
	1201:  unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
	1250:  charmap.Windows1250,
	1251:  charmap.Windows1251,
	1252:  charmap.Windows1252,
	1253:  charmap.Windows1253,
	1254:  charmap.Windows1254,
	1255:  charmap.Windows1255,
	1256:  charmap.Windows1256,
	1257:  charmap.Windows1257,
	1258:  charmap.Windows1258,
	20866: charmap.KOI8R,
	21866: charmap.KOI8U,
	28591: charmap.ISO8859_1,
	28592: charmap.ISO8859_2,
	28595: charmap.ISO8859_5,
	28605: charmap.ISO8859_15,
	54936: simplifiedchinese.GB18030,
	65001: unicode.UTF8,
}

// Lookup resolves a codepage given either as a Windows codepage number
// ("1252") or as an encoding name ("windows-1252", "shift_jis").
func Lookup(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return unicode.UTF8, nil
	}
	if id, err := strconv.Atoi(name); err == nil {
		if enc, ok := windowsCodepages[id]; ok {
			return enc, nil
		}
		return nil, errors.NewValidationError("unsupported codepage", nil).WithContext("codepage", name)
	}
	switch strings.ToLower(name) {
	case "utf-8", "utf8":
		return unicode.UTF8, nil
	case "utf-16", "utf-16le", "unicode":
		return windowsCodepages[1200], nil
	case "utf-16be":
		return windowsCodepages[1201], nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.NewValidationError("unknown codepage", err).WithContext("codepage", name)
	}
	return enc, nil
}

// Decoder converts a byte stream into UTF-8 text. Bytes of an incomplete
// multibyte sequence at the end of one chunk are kept for the next one.
// A Decoder must not be shared between independent streams.
type Decoder struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

// NewDecoder creates a streaming decoder for the named codepage.
func NewDecoder(name string) (*Decoder, error) {
	enc, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		t:   enc.NewDecoder(),
		dst: make([]byte, 4096),
	}, nil
}

// Decode converts chunk and returns the text that is complete so far.
func (d *Decoder) Decode(chunk []byte) string {
	return d.decode(chunk, false)
}

// Flush decodes whatever is still pending as if the stream ended.
func (d *Decoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	return d.decode(nil, true)
}

// Pending reports the number of bytes held back for the next chunk.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// Reset drops any pending bytes, for example after a file truncation.
func (d *Decoder) Reset() {
	d.pending = d.pending[:0]
	d.t.Reset()
}

func (d *Decoder) decode(chunk []byte, atEOF bool) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(append([]byte(nil), d.pending...), chunk...)
	}

	var out strings.Builder
	for len(src) > 0 {
		nDst, nSrc, err := d.t.Transform(d.dst, src, atEOF)
		out.Write(d.dst[:nDst])
		src = src[nSrc:]

		switch err {
		case nil:
			continue
		case transform.ErrShortDst:
			if nDst == 0 && nSrc == 0 {
				d.dst = make([]byte, len(d.dst)*2)
			}
			continue
		case transform.ErrShortSrc:
			if atEOF {
				out.WriteRune(utf8.RuneError)
				src = nil
			}
		default:
			// Undecodable byte: substitute and resynchronise.
			out.WriteRune(utf8.RuneError)
			src = src[1:]
			d.t.Reset()
			continue
		}
		break
	}

	d.pending = append(d.pending[:0], src...)
	return out.String()
}
