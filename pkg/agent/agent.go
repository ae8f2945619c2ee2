package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logcollection"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

// Options configures an Agent
type Options struct {
	Name            string
	ShutdownTimeout time.Duration
}

// AgentState represents the current state of the agent
type AgentState string

const (
	// AgentStateNotStarted is the initial state before Start() is called
	AgentStateNotStarted AgentState = "not_started"

	// AgentStateRunning means receivers are delivering to the output service
	AgentStateRunning AgentState = "running"

	// AgentStateStopping means the agent is disposing its receivers
	AgentStateStopping AgentState = "stopping"

	// AgentStateStopped means the agent has stopped; it cannot be restarted
	AgentStateStopped AgentState = "stopped"
)

// receiverEntry tracks one hosted receiver
type receiverEntry struct {
	provider receiver.Provider
	started  bool
	startErr error
}

// Agent hosts receivers and connects each of them to the output service
type Agent struct {
	options   Options
	output    logcollection.OutputService
	logger    logging.Logger
	receivers map[string]*receiverEntry
	order     []string
	state     AgentState
	mutex     sync.Mutex
}

func NewAgent(options Options, output logcollection.OutputService, logger logging.Logger) (*Agent, error) {
	if output == nil {
		return nil, errors.NewValidationError("output service cannot be nil", nil)
	}
	if options.ShutdownTimeout <= 0 {
		options.ShutdownTimeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Agent{
		options:   options,
		output:    output,
		logger:    logger,
		receivers: make(map[string]*receiverEntry),
		state:     AgentStateNotStarted,
	}, nil
}

// AddReceiver registers a receiver. A receiver added while the agent is
// running is started immediately.
func (a *Agent) AddReceiver(provider receiver.Provider) error {
	if provider == nil {
		return errors.NewValidationError("receiver cannot be nil", nil)
	}

	id := provider.ID()
	if err := ValidateReceiverID(id); err != nil {
		return errors.NewValidationError("invalid receiver ID", err).WithContext("receiver_id", id)
	}

	a.mutex.Lock()
	if a.state == AgentStateStopping || a.state == AgentStateStopped {
		state := a.state
		a.mutex.Unlock()
		return errors.NewConflictError(fmt.Sprintf("cannot add receiver to agent in state '%s'", state), nil).
			WithContext("receiver_id", id)
	}
	if _, exists := a.receivers[id]; exists {
		a.mutex.Unlock()
		return errors.NewConflictError("receiver already exists", nil).WithContext("receiver_id", id)
	}

	entry := &receiverEntry{provider: provider}
	a.receivers[id] = entry
	a.order = append(a.order, id)
	running := a.state == AgentStateRunning
	a.mutex.Unlock()

	a.logger.Infof("Receiver added, id: %s, source: %s", id, provider.DisplayInfo())

	if running {
		return a.startReceiver(entry)
	}
	return nil
}

// Start starts the output service and every registered receiver. A
// receiver that fails to initialize is logged and reported by Status;
// the others keep running.
func (a *Agent) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.NewValidationError("context cannot be nil", nil)
	}

	a.mutex.Lock()
	if a.state != AgentStateNotStarted {
		state := a.state
		a.mutex.Unlock()
		return errors.NewConflictError(fmt.Sprintf("agent cannot start from state '%s'", state), nil)
	}
	a.mutex.Unlock()

	a.logger.Infof("Starting agent %s...", a.options.Name)

	if err := a.output.Start(ctx); err != nil {
		return errors.NewInternalError("failed to start output service", err)
	}

	a.setState(AgentStateRunning)

	failed := 0
	for _, entry := range a.entries() {
		if err := a.startReceiver(entry); err != nil {
			failed++
		}
	}

	a.logger.Infof("Agent started, receivers: %d, failed: %d", len(a.entries()), failed)
	return nil
}

// startReceiver connects entry to the output service. An entry is started
// at most once, whether AddReceiver or Start reaches it first.
func (a *Agent) startReceiver(entry *receiverEntry) error {
	a.mutex.Lock()
	if entry.started {
		a.mutex.Unlock()
		return nil
	}
	entry.started = true
	a.mutex.Unlock()

	id := entry.provider.ID()

	handler, err := a.output.Handler(id)
	if err == nil {
		err = entry.provider.Initialize(handler)
		if err != nil {
			_ = a.output.Unregister(id)
		}
	}

	a.mutex.Lock()
	entry.startErr = err
	a.mutex.Unlock()

	if err != nil {
		a.logger.Errorf("Failed to start receiver, id: %s, error: %v", id, err)
		return err
	}

	a.logger.Infof("Receiver started, id: %s, source: %s", id, entry.provider.DisplayInfo())
	return nil
}

// Stop disposes every receiver and then stops the output service. Calling
// Stop on an agent that never started only marks it stopped.
func (a *Agent) Stop() error {
	a.mutex.Lock()
	switch a.state {
	case AgentStateStopping, AgentStateStopped:
		a.mutex.Unlock()
		return nil
	case AgentStateNotStarted:
		a.state = AgentStateStopped
		a.mutex.Unlock()
		return nil
	}
	a.state = AgentStateStopping
	a.mutex.Unlock()

	a.logger.Infof("Stopping agent...")

	errorCollection := errors.NewErrorCollection()
	if err := a.disposeReceivers(); err != nil {
		errorCollection.Add(err)
	}

	if err := a.output.Stop(); err != nil {
		a.logger.Errorf("Failed to stop output service: %v", err)
		errorCollection.Add(err)
	}

	a.setState(AgentStateStopped)
	a.logger.Infof("Agent stopped")

	return errorCollection.ToError()
}

// disposeReceivers disposes all receivers in parallel, bounded by the
// shutdown timeout
func (a *Agent) disposeReceivers() error {
	entries := a.entries()

	var mu sync.Mutex
	errorCollection := errors.NewErrorCollection()

	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(entry *receiverEntry) {
			defer wg.Done()
			id := entry.provider.ID()
			if err := entry.provider.Dispose(); err != nil {
				a.logger.Errorf("Failed to dispose receiver, id: %s, error: %v", id, err)
				mu.Lock()
				errorCollection.Add(errors.NewInternalError("failed to dispose receiver", err).WithContext("receiver_id", id))
				mu.Unlock()
			}
			_ = a.output.Unregister(id)
		}(entry)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(a.options.ShutdownTimeout):
		a.logger.Errorf("Receivers did not stop within %v", a.options.ShutdownTimeout)
		return errors.NewTimeoutError("receivers did not stop in time", nil).
			WithContext("timeout", a.options.ShutdownTimeout.String())
	}

	mu.Lock()
	defer mu.Unlock()
	return errorCollection.ToError()
}

// PauseReceiver pauses delivery of one receiver
func (a *Agent) PauseReceiver(id string) error {
	entry, err := a.runningEntry(id)
	if err != nil {
		return err
	}
	return entry.provider.Pause()
}

// ResumeReceiver resumes delivery of one receiver
func (a *Agent) ResumeReceiver(id string) error {
	entry, err := a.runningEntry(id)
	if err != nil {
		return err
	}
	return entry.provider.Resume()
}

func (a *Agent) runningEntry(id string) (*receiverEntry, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	entry, exists := a.receivers[id]
	if !exists {
		return nil, errors.NewValidationError("receiver not found", nil).WithContext("receiver_id", id)
	}
	if a.state != AgentStateRunning {
		return nil, errors.NewConflictError(
			fmt.Sprintf("agent must be running, current state: %s", a.state), nil,
		).WithContext("receiver_id", id)
	}
	return entry, nil
}

// ===== STATUS =====

// ReceiverStatus describes one hosted receiver
type ReceiverStatus struct {
	ID          string                              `json:"id"`
	DisplayInfo string                              `json:"display_info"`
	State       receiver.State                      `json:"state"`
	Error       string                              `json:"error,omitempty"`
	Output      *logcollection.ReceiverOutputStatus `json:"output,omitempty"`
}

// AgentStatus describes the agent and its receivers in registration order
type AgentStatus struct {
	Name      string           `json:"name"`
	State     AgentState       `json:"state"`
	Receivers []ReceiverStatus `json:"receivers"`
}

func (a *Agent) Status() AgentStatus {
	a.mutex.Lock()
	state := a.state
	a.mutex.Unlock()

	status := AgentStatus{
		Name:  a.options.Name,
		State: state,
	}

	for _, entry := range a.entries() {
		receiverStatus := ReceiverStatus{
			ID:          entry.provider.ID(),
			DisplayInfo: entry.provider.DisplayInfo(),
			State:       entry.provider.State(),
		}
		a.mutex.Lock()
		if entry.startErr != nil {
			receiverStatus.Error = entry.startErr.Error()
		}
		a.mutex.Unlock()
		if output, err := a.output.GetReceiverStatus(receiverStatus.ID); err == nil {
			receiverStatus.Output = output
		}
		status.Receivers = append(status.Receivers, receiverStatus)
	}

	return status
}

func (a *Agent) GetAgentState() AgentState {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.state
}

// entries returns the receiver entries in registration order
func (a *Agent) entries() []*receiverEntry {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	result := make([]*receiverEntry, 0, len(a.order))
	for _, id := range a.order {
		result = append(result, a.receivers[id])
	}
	return result
}

func (a *Agent) setState(state AgentState) {
	a.mutex.Lock()
	a.state = state
	a.mutex.Unlock()
}
