package receiver

import (
	"context"
	"fmt"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
)

// item is either a message or an error, kept in arrival order.
type item struct {
	msg *logmessage.LogMessage
	err *logmessage.LogError
}

// dispatcher is the only goroutine that calls the handler. Messages are
// batched; while the receiver is paused they are held in a bounded buffer.
type dispatcher struct {
	handler       Handler
	in            chan item
	resumed       chan struct{}
	gate          *gate
	collapser     *errorCollapser
	logger        logging.Logger
	title         string
	batchSize     int
	batchInterval time.Duration
	holdLimit     int

	pending []*logmessage.LogMessage
	flushC  <-chan time.Time
	holding bool
	held    []item
	dropped int
}

func newDispatcher(handler Handler, options Options, g *gate, title string, logger logging.Logger) *dispatcher {
	return &dispatcher{
		handler:       handler,
		in:            make(chan item, options.QueueSize),
		resumed:       make(chan struct{}, 1),
		gate:          g,
		collapser:     newErrorCollapser(options.ErrorWindow),
		logger:        logger,
		title:         title,
		batchSize:     options.BatchSize,
		batchInterval: options.BatchInterval,
		holdLimit:     options.PauseBufferSize,
	}
}

// notifyResumed wakes the loop to release held items.
func (d *dispatcher) notifyResumed() {
	select {
	case d.resumed <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run(ctx context.Context) {
	housekeeping := time.NewTicker(time.Second)
	defer housekeeping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case it := <-d.in:
			d.accept(ctx, it)
		case <-d.flushC:
			d.flush(ctx)
		case <-d.resumed:
			d.release(ctx)
		case <-housekeeping.C:
			for _, summary := range d.collapser.expire() {
				d.emitError(ctx, summary)
			}
		}
	}
}

func (d *dispatcher) accept(ctx context.Context, it item) {
	if it.err != nil {
		// Pending messages arrived first.
		d.flush(ctx)
		for _, e := range d.collapser.offer(it.err) {
			d.emitError(ctx, e)
		}
		return
	}

	d.pending = append(d.pending, it.msg)
	if len(d.pending) >= d.batchSize {
		d.flush(ctx)
		return
	}
	if d.flushC == nil {
		d.flushC = time.After(d.batchInterval)
	}
}

func (d *dispatcher) flush(ctx context.Context) {
	d.flushC = nil
	if len(d.pending) == 0 {
		return
	}
	batch := d.pending
	d.pending = nil

	if d.isHolding() {
		for _, msg := range batch {
			d.hold(item{msg: msg})
		}
		return
	}
	d.deliverMessages(ctx, batch)
}

func (d *dispatcher) emitError(ctx context.Context, err *logmessage.LogError) {
	if !d.isHolding() {
		d.deliverError(ctx, err)
		return
	}
	d.hold(item{err: err})
	if err.Severity == logmessage.SeverityFatal {
		// A faulted receiver never resumes; what was held goes out first.
		d.drain(ctx)
	}
}

func (d *dispatcher) isHolding() bool {
	if !d.holding && d.gate.isPaused() {
		d.holding = true
	}
	return d.holding
}

func (d *dispatcher) hold(it item) {
	d.held = append(d.held, it)
	if len(d.held) > d.holdLimit {
		d.held[0] = item{}
		d.held = d.held[1:]
		d.dropped++
	}
}

// release delivers everything held during a pause, oldest first.
func (d *dispatcher) release(ctx context.Context) {
	if !d.holding || d.gate.isPaused() {
		return
	}
	d.drain(ctx)
}

// drain delivers the held items in arrival order regardless of the gate.
func (d *dispatcher) drain(ctx context.Context) {
	d.holding = false

	held, dropped := d.held, d.dropped
	d.held, d.dropped = nil, 0

	if dropped > 0 {
		d.deliverError(ctx, &logmessage.LogError{
			Title:    d.title,
			Message:  fmt.Sprintf("%d records dropped while paused", dropped),
			Severity: logmessage.SeverityWarning,
			Type:     errors.ErrorTypeInternal,
			Time:     time.Now(),
		})
	}

	var batch []*logmessage.LogMessage
	for _, it := range held {
		if it.msg != nil {
			batch = append(batch, it.msg)
			if len(batch) >= d.batchSize {
				d.deliverMessages(ctx, batch)
				batch = nil
			}
			continue
		}
		d.deliverMessages(ctx, batch)
		batch = nil
		d.deliverError(ctx, it.err)
	}
	d.deliverMessages(ctx, batch)
	d.flush(ctx)
}

func (d *dispatcher) deliverMessages(ctx context.Context, batch []*logmessage.LogMessage) {
	if len(batch) == 0 || ctx.Err() != nil {
		return
	}
	if len(batch) == 1 {
		d.call(ctx, "HandleMessage", func() { d.handler.HandleMessage(batch[0]) })
		return
	}
	d.call(ctx, "HandleMessages", func() { d.handler.HandleMessages(batch) })
}

func (d *dispatcher) deliverError(ctx context.Context, err *logmessage.LogError) {
	if ctx.Err() != nil {
		return
	}
	d.call(ctx, "HandleError", func() { d.handler.HandleError(err) })
}

// call invokes the handler and converts a panic into a LogError.
func (d *dispatcher) call(ctx context.Context, method string, fn func()) {
	panicked, value := protect(fn)
	if !panicked {
		return
	}
	d.logger.Errorf("Handler panicked, method: %s, panic: %v", method, value)
	if method == "HandleError" || ctx.Err() != nil {
		return
	}
	report := logmessage.NewLogError(d.title,
		errors.NewHandlerError(fmt.Sprintf("%s panicked", method), fmt.Errorf("%v", value)))
	if again, value := protect(func() { d.handler.HandleError(report) }); again {
		d.logger.Errorf("Handler panicked while reporting a panic, panic: %v", value)
	}
}

func protect(fn func()) (panicked bool, value interface{}) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			value = r
		}
	}()
	fn()
	return false, nil
}
