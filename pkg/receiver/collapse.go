package receiver

import (
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
)

// DefaultErrorWindow is how long identical consecutive errors are folded
// into one.
const DefaultErrorWindow = 5 * time.Second

// errorCollapser folds an error identical to the immediately preceding one
// into a repeat count. The fold is reported as a summary once a different
// error arrives or the window ends.
type errorCollapser struct {
	window     time.Duration
	now        func() time.Time
	last       *logmessage.LogError
	first      time.Time
	suppressed int
}

func newErrorCollapser(window time.Duration) *errorCollapser {
	return &errorCollapser{window: window, now: time.Now}
}

// offer returns the errors to deliver in order.
func (c *errorCollapser) offer(err *logmessage.LogError) []*logmessage.LogError {
	now := c.now()
	if c.last != nil && c.last.Key() == err.Key() && now.Sub(c.first) < c.window {
		c.suppressed++
		return nil
	}

	out := c.summary()
	c.last = err
	c.first = now
	c.suppressed = 0
	return append(out, err)
}

// expire reports a pending summary whose window has ended.
func (c *errorCollapser) expire() []*logmessage.LogError {
	if c.last == nil || c.suppressed == 0 || c.now().Sub(c.first) < c.window {
		return nil
	}
	out := c.summary()
	c.last = nil
	return out
}

func (c *errorCollapser) summary() []*logmessage.LogError {
	if c.last == nil || c.suppressed == 0 {
		return nil
	}
	summary := *c.last
	summary.Repeated = c.suppressed
	summary.Time = c.now()
	c.suppressed = 0
	return []*logmessage.LogError{&summary}
}
