// Package receivertest provides handlers and sources for testing receivers.
package receivertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

// RecordingHandler keeps everything it is given.
type RecordingHandler struct {
	mu          sync.Mutex
	messages    []*logmessage.LogMessage
	errors      []*logmessage.LogError
	singleCalls int
	batchCalls  int
}

func NewRecordingHandler() *RecordingHandler {
	return &RecordingHandler{}
}

func (h *RecordingHandler) HandleMessage(msg *logmessage.LogMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.singleCalls++
	h.messages = append(h.messages, msg)
}

func (h *RecordingHandler) HandleMessages(msgs []*logmessage.LogMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batchCalls++
	h.messages = append(h.messages, msgs...)
}

func (h *RecordingHandler) HandleError(err *logmessage.LogError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err)
}

func (h *RecordingHandler) Messages() []*logmessage.LogMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*logmessage.LogMessage(nil), h.messages...)
}

func (h *RecordingHandler) Errors() []*logmessage.LogError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*logmessage.LogError(nil), h.errors...)
}

func (h *RecordingHandler) MessageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func (h *RecordingHandler) ErrorCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.errors)
}

// Calls returns the number of HandleMessage and HandleMessages calls.
func (h *RecordingHandler) Calls() (single, batch int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.singleCalls, h.batchCalls
}

// MessagesFrom returns the messages whose Source equals source.
func (h *RecordingHandler) MessagesFrom(source string) []*logmessage.LogMessage {
	var out []*logmessage.LogMessage
	for _, msg := range h.Messages() {
		if msg.Source == source {
			out = append(out, msg)
		}
	}
	return out
}

// WaitForMessages waits until at least n messages arrived and returns them.
func (h *RecordingHandler) WaitForMessages(t testing.TB, n int, timeout time.Duration) []*logmessage.LogMessage {
	t.Helper()
	require.Eventually(t, func() bool { return h.MessageCount() >= n }, timeout, 10*time.Millisecond,
		"expected %d messages", n)
	return h.Messages()
}

// WaitForErrors waits until at least n errors arrived and returns them.
func (h *RecordingHandler) WaitForErrors(t testing.TB, n int, timeout time.Duration) []*logmessage.LogError {
	t.Helper()
	require.Eventually(t, func() bool { return h.ErrorCount() >= n }, timeout, 10*time.Millisecond,
		"expected %d errors", n)
	return h.Errors()
}

// MockHandler is a testify mock of receiver.Handler.
type MockHandler struct {
	mock.Mock
}

func (m *MockHandler) HandleMessage(msg *logmessage.LogMessage) {
	m.Called(msg)
}

func (m *MockHandler) HandleMessages(msgs []*logmessage.LogMessage) {
	m.Called(msgs)
}

func (m *MockHandler) HandleError(err *logmessage.LogError) {
	m.Called(err)
}

// FuncSource is a receiver.Source assembled from functions.
type FuncSource struct {
	Info       string
	ValidateFn func() error
	PrepareFn  func() error
	RunFn      func(ctx context.Context, p *receiver.Pipeline) error
}

func (s *FuncSource) Validate() error {
	if s.ValidateFn == nil {
		return nil
	}
	return s.ValidateFn()
}

func (s *FuncSource) Prepare() error {
	if s.PrepareFn == nil {
		return nil
	}
	return s.PrepareFn()
}

func (s *FuncSource) Run(ctx context.Context, p *receiver.Pipeline) error {
	if s.RunFn == nil {
		<-ctx.Done()
		return nil
	}
	return s.RunFn(ctx, p)
}

func (s *FuncSource) DisplayInfo() string {
	if s.Info == "" {
		return "Test source"
	}
	return s.Info
}

// LineFeed returns a FuncSource that forwards every line sent on lines.
func LineFeed(lines <-chan string) *FuncSource {
	return &FuncSource{
		Info: "Line feed",
		RunFn: func(ctx context.Context, p *receiver.Pipeline) error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case line := <-lines:
					p.Line("feed", line)
				}
			}
		},
	}
}

var _ receiver.Handler = (*RecordingHandler)(nil)
var _ receiver.Handler = (*MockHandler)(nil)
var _ receiver.Source = (*FuncSource)(nil)
