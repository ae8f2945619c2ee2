package receiver

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/columnizer"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
)

// Pipeline is what a Source feeds. It parses records, assigns indexes and
// queues results for the dispatcher. It is safe for concurrent use by all
// goroutines of one receiver.
type Pipeline struct {
	ctx    context.Context
	engine *columnizer.Engine
	out    chan<- item
	gate   *gate
	title  string
	now    func() time.Time

	// next is the Index of the next message.
	next uint64
}

func newPipeline(ctx context.Context, engine *columnizer.Engine, out chan<- item, g *gate, title string) *Pipeline {
	return &Pipeline{
		ctx:    ctx,
		engine: engine,
		out:    out,
		gate:   g,
		title:  title,
		now:    time.Now,
	}
}

// Engine returns the compiled columnizer.
func (p *Pipeline) Engine() *columnizer.Engine {
	return p.engine
}

// Count returns how many messages have been indexed so far.
func (p *Pipeline) Count() uint64 {
	return atomic.LoadUint64(&p.next)
}

// Line parses one record from source. It returns false once the receiver
// is shutting down.
func (p *Pipeline) Line(source, line string) bool {
	return p.LineWithLogger(source, line, "")
}

// LineWithLogger is Line with a logger name used when the columnizer does
// not provide one.
func (p *Pipeline) LineWithLogger(source, line, logger string) bool {
	msg, err := p.engine.Parse(line, p.now())
	if err != nil {
		logErr := logmessage.NewLogError(p.title, err)
		logErr.Detail = line
		return p.send(item{err: logErr})
	}
	msg.Source = source
	if msg.Logger == "" {
		msg.Logger = logger
	}
	return p.Message(msg)
}

// Message queues a message that was built without the columnizer, e.g. a
// syslog datagram. Its Index is assigned here.
func (p *Pipeline) Message(msg *logmessage.LogMessage) bool {
	if p.ctx.Err() != nil {
		return false
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = p.now()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = msg.ReceivedAt
	}
	msg.Index = atomic.AddUint64(&p.next, 1) - 1
	return p.send(item{msg: msg})
}

// Error reports err to the handler as a LogError.
func (p *Pipeline) Error(err error) bool {
	return p.send(item{err: logmessage.NewLogError(p.title, err)})
}

// ReportError queues a prepared LogError.
func (p *Pipeline) ReportError(err *logmessage.LogError) bool {
	if err.Title == "" {
		err.Title = p.title
	}
	return p.send(item{err: err})
}

// Paused reports whether delivery is suspended.
func (p *Pipeline) Paused() bool {
	return p.gate.isPaused()
}

// WaitActive blocks while the receiver is paused. Polling sources call it
// before every poll.
func (p *Pipeline) WaitActive(ctx context.Context) error {
	return p.gate.wait(ctx)
}

func (p *Pipeline) send(it item) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.out <- it:
		return true
	}
}
