package receiver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/core-tools/hsu-logreceiver/pkg/columnizer"
	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
)

const (
	DefaultBatchSize       = 100
	DefaultBatchInterval   = 50 * time.Millisecond
	DefaultQueueSize       = 4096
	DefaultPauseBufferSize = 10000
)

// Options are the settings shared by every receiver type.
type Options struct {
	ID              string
	Columnizer      columnizer.Columnizer
	BatchSize       int
	BatchInterval   time.Duration
	QueueSize       int
	PauseBufferSize int
	ErrorWindow     time.Duration
	Logger          logging.Logger
}

func (o Options) withDefaults() Options {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if len(o.Columnizer.Columns) == 0 {
		o.Columnizer = columnizer.PlainColumnizer()
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchInterval <= 0 {
		o.BatchInterval = DefaultBatchInterval
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.PauseBufferSize <= 0 {
		o.PauseBufferSize = DefaultPauseBufferSize
	}
	if o.ErrorWindow <= 0 {
		o.ErrorWindow = DefaultErrorWindow
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
	return o
}

// Receiver drives a Source through the lifecycle
// created -> initializing -> running <-> paused -> disposed, with faulted
// entered when the source fails for good.
type Receiver struct {
	source  Source
	options Options
	logger  logging.Logger

	mu         sync.RWMutex
	state      State
	gate       *gate
	dispatcher *dispatcher
	pipeline   *Pipeline
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New wraps source. Nothing is validated or started until Initialize.
func New(source Source, options Options) *Receiver {
	options = options.withDefaults()
	return &Receiver{
		source:  source,
		options: options,
		logger:  options.Logger,
		state:   StateCreated,
		gate:    newGate(),
	}
}

func (r *Receiver) ID() string {
	return r.options.ID
}

func (r *Receiver) DisplayInfo() string {
	return r.source.DisplayInfo()
}

func (r *Receiver) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Pipeline returns the running pipeline, or nil before Initialize.
func (r *Receiver) Pipeline() *Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pipeline
}

func (r *Receiver) Initialize(handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateDisposed {
		return errors.NewConflictError("receiver has been disposed", nil).WithContext("id", r.options.ID)
	}
	if r.state != StateCreated {
		return errors.NewValidationError(
			fmt.Sprintf("cannot initialize receiver in state '%s': operation not allowed", r.state),
			nil).WithContext("id", r.options.ID).WithContext("current_state", string(r.state))
	}
	if handler == nil {
		return errors.NewValidationError("handler cannot be nil", nil).WithContext("id", r.options.ID)
	}

	engine, err := columnizer.NewEngine(r.options.Columnizer)
	if err != nil {
		return errors.NewValidationError("invalid columnizer", err).WithContext("id", r.options.ID)
	}
	if err := r.source.Validate(); err != nil {
		return err
	}

	r.state = StateInitializing
	if err := r.source.Prepare(); err != nil {
		r.state = StateCreated
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	title := r.source.DisplayInfo()
	r.cancel = cancel
	r.dispatcher = newDispatcher(handler, r.options, r.gate, title, r.logger)
	r.pipeline = newPipeline(ctx, engine, r.dispatcher.in, r.gate, title)

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.dispatcher.run(ctx)
	}()
	go r.acquire(ctx, r.pipeline)

	r.state = StateRunning
	r.logger.Infof("Receiver initialized, id: %s, source: %s", r.options.ID, title)
	return nil
}

func (r *Receiver) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StatePaused:
		return nil
	case StateRunning:
	case StateDisposed:
		return errors.NewConflictError("receiver has been disposed", nil).WithContext("id", r.options.ID)
	default:
		return errors.NewValidationError(
			fmt.Sprintf("cannot pause receiver in state '%s': operation not allowed", r.state),
			nil).WithContext("id", r.options.ID).WithContext("current_state", string(r.state))
	}

	r.gate.pause()
	r.state = StatePaused
	r.logger.Debugf("Receiver paused, id: %s", r.options.ID)
	return nil
}

func (r *Receiver) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateRunning:
		return nil
	case StatePaused:
	case StateDisposed:
		return errors.NewConflictError("receiver has been disposed", nil).WithContext("id", r.options.ID)
	default:
		return errors.NewValidationError(
			fmt.Sprintf("cannot resume receiver in state '%s': operation not allowed", r.state),
			nil).WithContext("id", r.options.ID).WithContext("current_state", string(r.state))
	}

	r.gate.resume()
	r.dispatcher.notifyResumed()
	r.state = StateRunning
	r.logger.Debugf("Receiver resumed, id: %s", r.options.ID)
	return nil
}

func (r *Receiver) Dispose() error {
	r.mu.Lock()
	if r.state == StateDisposed {
		r.mu.Unlock()
		return nil
	}
	previous := r.state
	r.state = StateDisposed
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// Unblock loops waiting on the pause gate; the cancelled context stops them.
	r.gate.resume()
	r.wg.Wait()

	r.logger.Infof("Receiver disposed, id: %s, previous_state: %s", r.options.ID, previous)
	return nil
}

// acquire runs the source and turns its terminal failure into Faulted.
func (r *Receiver) acquire(ctx context.Context, p *Pipeline) {
	defer r.wg.Done()

	err := r.runSource(ctx, p)
	if err == nil || ctx.Err() != nil {
		return
	}

	r.logger.Errorf("Receiver faulted, id: %s, error: %v", r.options.ID, err)
	logErr := logmessage.NewLogError(p.title, err)
	logErr.Severity = logmessage.SeverityFatal
	p.ReportError(logErr)

	r.mu.Lock()
	if r.state == StateRunning || r.state == StatePaused {
		r.state = StateFaulted
	}
	r.mu.Unlock()
}

func (r *Receiver) runSource(ctx context.Context, p *Pipeline) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.NewInternalError(fmt.Sprintf("acquisition loop panicked: %v", rec), nil)
		}
	}()
	return r.source.Run(ctx, p)
}
