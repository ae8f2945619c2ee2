package receiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
)

func parseFailure(detail string) *logmessage.LogError {
	return &logmessage.LogError{
		Title:   "Line feed",
		Message: "record does not match columnizer 'app'",
		Type:    errors.ErrorTypeParse,
		Detail:  detail,
	}
}

func TestErrorCollapser_FoldsIdenticalConsecutive(t *testing.T) {
	now := time.Unix(1000, 0)
	c := newErrorCollapser(5 * time.Second)
	c.now = func() time.Time { return now }

	out := c.offer(parseFailure("a"))
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].Repeated)

	for i := 0; i < 4; i++ {
		now = now.Add(time.Second)
		assert.Empty(t, c.offer(parseFailure("a")))
	}

	different := &logmessage.LogError{Title: "Line feed", Message: "connection reset", Type: errors.ErrorTypeNetwork}
	out = c.offer(different)
	require.Len(t, out, 2)
	assert.Equal(t, 4, out[0].Repeated)
	assert.Equal(t, errors.ErrorTypeParse, out[0].Type)
	assert.Same(t, different, out[1])
}

func TestErrorCollapser_DifferentRecordsAreNotFolded(t *testing.T) {
	c := newErrorCollapser(5 * time.Second)

	out := c.offer(parseFailure("first bad record"))
	require.Len(t, out, 1)

	out = c.offer(parseFailure("second, different bad record"))
	require.Len(t, out, 1)
	assert.Equal(t, "second, different bad record", out[0].Detail)
	assert.Equal(t, 0, out[0].Repeated)
}

func TestErrorCollapser_WindowRestarts(t *testing.T) {
	now := time.Unix(1000, 0)
	c := newErrorCollapser(5 * time.Second)
	c.now = func() time.Time { return now }

	require.Len(t, c.offer(parseFailure("a")), 1)
	now = now.Add(time.Second)
	assert.Empty(t, c.offer(parseFailure("a")))

	now = now.Add(5 * time.Second)
	out := c.offer(parseFailure("a"))
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Repeated)
	assert.Equal(t, 0, out[1].Repeated)
}

func TestErrorCollapser_Expire(t *testing.T) {
	now := time.Unix(1000, 0)
	c := newErrorCollapser(time.Second)
	c.now = func() time.Time { return now }

	c.offer(parseFailure("a"))
	assert.Empty(t, c.expire())

	c.offer(parseFailure("a"))
	c.offer(parseFailure("a"))
	assert.Empty(t, c.expire(), "window still open")

	now = now.Add(2 * time.Second)
	out := c.expire()
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Repeated)
	assert.Empty(t, c.expire())

	// the next identical error is reported again
	assert.Len(t, c.offer(parseFailure("a")), 1)
}
