package receiver

import (
	"context"

	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
)

// ===== CONSUMER BOUNDARY =====

// Handler receives the output of a receiver. All calls for one receiver
// come from a single goroutine; implementations must return quickly.
type Handler interface {
	HandleMessage(msg *logmessage.LogMessage)
	HandleMessages(msgs []*logmessage.LogMessage)
	HandleError(err *logmessage.LogError)
}

// Provider is the lifecycle every receiver exposes.
type Provider interface {
	// Initialize validates the configuration, starts acquisition and
	// delivers results to handler.
	Initialize(handler Handler) error
	Pause() error
	Resume() error
	// Dispose stops acquisition. No handler call happens after it returns.
	Dispose() error
	DisplayInfo() string
	State() State
	ID() string
}

// ===== ADAPTER BOUNDARY =====

// Source is a transport adapter driven by a Receiver.
type Source interface {
	// Validate checks the configuration without touching any resource.
	Validate() error
	// Prepare runs synchronously at the end of Initialize, for example to
	// capture the current end of a file.
	Prepare() error
	// Run acquires records until ctx is cancelled. Transient failures are
	// reported through the pipeline and retried; a returned error moves
	// the receiver to Faulted.
	Run(ctx context.Context, p *Pipeline) error
	// DisplayInfo describes the source, e.g. "TCP listener on :4505".
	DisplayInfo() string
}

// ===== STATE =====

// State is the lifecycle state of a receiver.
type State string

const (
	StateCreated      State = "created"
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StatePaused       State = "paused"
	StateFaulted      State = "faulted"
	StateDisposed     State = "disposed"
)
