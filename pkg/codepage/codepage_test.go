package codepage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"", "utf-8", "UTF8", "65001", "1252", "windows-1251", "shift_jis", "iso-8859-1", "utf-16be"} {
		t.Run(name, func(t *testing.T) {
			enc, err := Lookup(name)
			require.NoError(t, err)
			assert.NotNil(t, enc)
		})
	}

	_, err := Lookup("klingon")
	assert.True(t, errors.IsValidationError(err))
	_, err = Lookup("99999")
	assert.True(t, errors.IsValidationError(err))
}

func TestDecoder_UTF8SplitAcrossChunks(t *testing.T) {
	d, err := NewDecoder("utf-8")
	require.NoError(t, err)

	data := []byte("héllo wörld\n")
	// split inside the two-byte 'é'
	first := d.Decode(data[:2])
	assert.Equal(t, "h", first)
	assert.Equal(t, 1, d.Pending())

	second := d.Decode(data[2:])
	assert.Equal(t, "héllo wörld\n", first+second)
	assert.Equal(t, 0, d.Pending())
}

func TestDecoder_Windows1252(t *testing.T) {
	d, err := NewDecoder("1252")
	require.NoError(t, err)

	// 0x80 is the euro sign in windows-1252
	assert.Equal(t, "price: €5", d.Decode([]byte{'p', 'r', 'i', 'c', 'e', ':', ' ', 0x80, '5'}))
}

func TestDecoder_ShiftJISSplitAcrossChunks(t *testing.T) {
	d, err := NewDecoder("shift_jis")
	require.NoError(t, err)

	// "日本" in Shift-JIS
	encoded := []byte{0x93, 0xfa, 0x96, 0x7b}
	got := d.Decode(encoded[:1]) + d.Decode(encoded[1:3]) + d.Decode(encoded[3:])
	assert.Equal(t, "日本", got)
}

func TestDecoder_FlushIncomplete(t *testing.T) {
	d, err := NewDecoder("utf-8")
	require.NoError(t, err)

	assert.Equal(t, "a", d.Decode([]byte{'a', 0xc3}))
	assert.Equal(t, "�", d.Flush())
	assert.Equal(t, "", d.Flush())
}

func TestDecoder_Reset(t *testing.T) {
	d, err := NewDecoder("utf-8")
	require.NoError(t, err)

	d.Decode([]byte{0xe2, 0x82})
	d.Reset()
	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, "ok", d.Decode([]byte("ok")))
}
