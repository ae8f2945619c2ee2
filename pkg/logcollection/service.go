package logcollection

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logcollection/config"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

// ===== MAIN OUTPUT SERVICE =====

// outputService implements the OutputService interface
type outputService struct {
	config config.OutputConfig

	logger    StructuredLogger
	receivers map[string]*receiverOutput
	outputs   []LogOutputWriter
	stdout    io.Writer
	stderr    io.Writer

	// State management
	mu      sync.RWMutex
	running int32 // atomic
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Metrics
	totalMessages int64 // atomic
	totalErrors   int64 // atomic
	totalBytes    int64 // atomic
	writeFailures int64 // atomic
	lastActivity  int64 // atomic, unix nanos
	startTime     time.Time
}

// NewOutputService creates a new output service
func NewOutputService(cfg config.OutputConfig, logger StructuredLogger) OutputService {
	return NewOutputServiceWithStreams(cfg, logger, os.Stdout, os.Stderr)
}

// NewOutputServiceWithStreams creates an output service whose stdout and
// stderr targets write to the given streams
func NewOutputServiceWithStreams(cfg config.OutputConfig, logger StructuredLogger, stdout, stderr io.Writer) OutputService {
	if cfg.MaxErrors == 0 {
		cfg.MaxErrors = 10
	}
	return &outputService{
		config:    cfg,
		logger:    logger,
		receivers: make(map[string]*receiverOutput),
		stdout:    stdout,
		stderr:    stderr,
	}
}

// ===== SERVICE LIFECYCLE =====

// Start opens the output targets and starts the periodic flush
func (s *outputService) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return errors.NewConflictError("output service already running", nil)
	}

	if err := s.config.Validate(); err != nil {
		atomic.StoreInt32(&s.running, 0)
		return errors.NewValidationError("invalid output configuration", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.startTime = time.Now()

	if err := s.initializeOutputs(); err != nil {
		atomic.StoreInt32(&s.running, 0)
		return errors.NewIOError("failed to initialize outputs", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.config.FlushInterval > 0 && len(s.outputs) > 0 {
		s.wg.Add(1)
		go s.flushLoop(runCtx, s.config.FlushInterval)
	}

	s.logger.WithFields(
		Component("output"),
		Int("targets", len(s.outputs)),
	).Infof("Output service started")

	return nil
}

// Stop flushes and closes every target
func (s *outputService) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return errors.NewConflictError("output service not running", nil)
	}

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, out := range s.receivers {
		out.setActive(false)
	}

	collection := errors.NewErrorCollection()
	for _, output := range s.outputs {
		if err := output.Close(); err != nil {
			s.logger.WithError(err).Warnf("Error closing output writer")
			collection.Add(err)
		}
	}
	s.outputs = nil

	s.logger.WithFields(
		Duration("uptime", time.Since(s.startTime)),
		Int64("total_messages", atomic.LoadInt64(&s.totalMessages)),
		Int64("total_errors", atomic.LoadInt64(&s.totalErrors)),
	).Infof("Output service stopped")

	return collection.ToError()
}

func (s *outputService) flushLoop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.WithError(err).Warnf("Periodic flush failed")
			}
		}
	}
}

// Flush flushes every target
func (s *outputService) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collection := errors.NewErrorCollection()
	for _, output := range s.outputs {
		collection.Add(output.Flush())
	}
	return collection.ToError()
}

// ===== RECEIVER MANAGEMENT =====

// Handler registers a receiver and returns its handler
func (s *outputService) Handler(receiverID string) (receiver.Handler, error) {
	if atomic.LoadInt32(&s.running) == 0 {
		return nil, errors.NewConflictError("output service not running", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.receivers[receiverID]; exists {
		return nil, errors.NewConflictError(fmt.Sprintf("receiver %s already registered", receiverID), nil)
	}

	out := &receiverOutput{
		receiverID: receiverID,
		service:    s,
		logger:     s.logger.WithReceiver(receiverID),
		active:     true,
	}
	s.receivers[receiverID] = out

	s.logger.WithReceiver(receiverID).Debugf("Receiver registered for output")

	return out, nil
}

// Unregister detaches a receiver; its handler discards further calls
func (s *outputService) Unregister(receiverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, exists := s.receivers[receiverID]
	if !exists {
		return errors.NewValidationError(fmt.Sprintf("receiver %s not registered", receiverID), nil)
	}

	out.setActive(false)
	delete(s.receivers, receiverID)

	s.logger.WithReceiver(receiverID).Debugf("Receiver unregistered from output")

	return nil
}

// ===== CONFIGURATION AND STATUS =====

func (s *outputService) GetConfiguration() config.OutputConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.config
}

func (s *outputService) GetReceiverStatus(receiverID string) (*ReceiverOutputStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out, exists := s.receivers[receiverID]
	if !exists {
		return nil, errors.NewValidationError(fmt.Sprintf("receiver %s not registered", receiverID), nil)
	}

	return out.getStatus(), nil
}

func (s *outputService) GetSystemStatus() *SystemOutputStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receivers := make(map[string]*ReceiverOutputStatus, len(s.receivers))
	for id, out := range s.receivers {
		receivers[id] = out.getStatus()
	}

	outputTargets := make([]string, len(s.config.Targets))
	for i, target := range s.config.Targets {
		outputTargets[i] = target.Type
		if target.Path != "" {
			outputTargets[i] += ":" + target.Path
		}
	}

	var lastActivity time.Time
	if nanos := atomic.LoadInt64(&s.lastActivity); nanos != 0 {
		lastActivity = time.Unix(0, nanos)
	}

	return &SystemOutputStatus{
		Active:         atomic.LoadInt32(&s.running) == 1,
		TotalReceivers: len(s.receivers),
		TotalMessages:  atomic.LoadInt64(&s.totalMessages),
		TotalErrors:    atomic.LoadInt64(&s.totalErrors),
		TotalBytes:     atomic.LoadInt64(&s.totalBytes),
		WriteFailures:  atomic.LoadInt64(&s.writeFailures),
		StartTime:      s.startTime,
		LastActivity:   lastActivity,
		Receivers:      receivers,
		OutputTargets:  outputTargets,
	}
}

// ===== INTERNAL HELPERS =====

func (s *outputService) initializeOutputs() error {
	if !s.config.Enabled {
		return nil
	}

	s.outputs = make([]LogOutputWriter, 0, len(s.config.Targets))
	for _, target := range s.config.Targets {
		writer, err := s.createOutputWriter(target)
		if err != nil {
			for _, opened := range s.outputs {
				opened.Close()
			}
			s.outputs = nil
			return fmt.Errorf("failed to create output writer for %s: %w", target.Type, err)
		}
		s.outputs = append(s.outputs, writer)
	}

	return nil
}

func (s *outputService) createOutputWriter(target config.OutputTargetConfig) (LogOutputWriter, error) {
	minLevel := logmessage.LevelTrace
	if target.MinLevel != "" {
		level, ok := logmessage.ParseLevel(target.MinLevel)
		if !ok {
			return nil, fmt.Errorf("unknown min_level %q", target.MinLevel)
		}
		minLevel = level
	}
	format := target.Format
	if format == "" {
		format = config.FormatPlain
	}

	switch target.Type {
	case config.TargetStdout:
		return newStreamWriter(s.stdout, format, minLevel), nil
	case config.TargetStderr:
		return newStreamWriter(s.stderr, format, minLevel), nil
	case config.TargetFile:
		return newStreamWriter(newRotatingFile(target.Path, target.Rotation), format, minLevel), nil
	default:
		return nil, fmt.Errorf("unsupported output target type: %s", target.Type)
	}
}

// write hands entry to every target; the caller holds no locks
func (s *outputService) write(entry OutputEntry) int {
	s.mu.RLock()
	outputs := s.outputs
	s.mu.RUnlock()

	written := 0
	for _, output := range outputs {
		if err := output.Write(entry); err != nil {
			atomic.AddInt64(&s.writeFailures, 1)
			s.logger.WithError(err).Warnf("Failed to write to output")
			continue
		}
		written = len(entry.Message)
	}
	atomic.StoreInt64(&s.lastActivity, time.Now().UnixNano())
	return written
}

// ===== RECEIVER OUTPUT (receiver.Handler) =====

// receiverOutput is the Handler given to one receiver
type receiverOutput struct {
	receiverID string
	service    *outputService
	logger     StructuredLogger

	mu              sync.RWMutex
	active          bool
	messagesWritten int64
	bytesWritten    int64
	errorsReported  int64
	lastActivity    time.Time
	errors          []string
}

func (r *receiverOutput) HandleMessage(msg *logmessage.LogMessage) {
	r.HandleMessages([]*logmessage.LogMessage{msg})
}

func (r *receiverOutput) HandleMessages(msgs []*logmessage.LogMessage) {
	if !r.isActive() {
		return
	}

	var bytes int64
	for _, msg := range msgs {
		bytes += int64(r.service.write(messageEntry(r.receiverID, msg)))
	}

	atomic.AddInt64(&r.service.totalMessages, int64(len(msgs)))
	atomic.AddInt64(&r.service.totalBytes, bytes)

	r.mu.Lock()
	r.messagesWritten += int64(len(msgs))
	r.bytesWritten += bytes
	r.lastActivity = time.Now()
	r.mu.Unlock()
}

func (r *receiverOutput) HandleError(err *logmessage.LogError) {
	if !r.isActive() {
		return
	}

	r.service.write(errorEntry(r.receiverID, err))
	atomic.AddInt64(&r.service.totalErrors, 1)

	r.logger.WithFields(
		String("error_type", string(err.Type)),
		String("severity", string(err.Severity)),
	).Warnf("%s", err.Error())

	r.mu.Lock()
	defer r.mu.Unlock()

	r.errorsReported++
	r.lastActivity = time.Now()
	r.errors = append(r.errors, fmt.Sprintf("%s: %s", err.Time.Format(time.RFC3339), err.Error()))

	if limit := r.service.config.MaxErrors; len(r.errors) > limit {
		r.errors = r.errors[len(r.errors)-limit:]
	}
}

func (r *receiverOutput) isActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

func (r *receiverOutput) setActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = active
}

func (r *receiverOutput) getStatus() *ReceiverOutputStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	errorsCopy := make([]string, len(r.errors))
	copy(errorsCopy, r.errors)

	return &ReceiverOutputStatus{
		ReceiverID:      r.receiverID,
		Active:          r.active,
		MessagesWritten: r.messagesWritten,
		BytesWritten:    r.bytesWritten,
		ErrorsReported:  r.errorsReported,
		LastActivity:    r.lastActivity,
		Errors:          errorsCopy,
	}
}

func messageEntry(receiverID string, msg *logmessage.LogMessage) OutputEntry {
	return OutputEntry{
		Timestamp:  msg.Timestamp,
		Level:      msg.Level.String(),
		Logger:     msg.Logger,
		Message:    msg.Message,
		ReceiverID: receiverID,
		Source:     msg.Source,
		Raw:        msg.RawData,
	}
}

func errorEntry(receiverID string, err *logmessage.LogError) OutputEntry {
	level := logmessage.LevelWarn
	switch err.Severity {
	case logmessage.SeverityInfo:
		level = logmessage.LevelInfo
	case logmessage.SeverityError:
		level = logmessage.LevelError
	case logmessage.SeverityFatal:
		level = logmessage.LevelFatal
	}
	return OutputEntry{
		Timestamp:  err.Time,
		Level:      level.String(),
		Logger:     "receiver." + receiverID,
		Message:    err.Error(),
		ReceiverID: receiverID,
		Raw:        err.Detail,
	}
}

// ===== OUTPUT WRITERS =====

// streamWriter writes formatted lines to any io.Writer. Writers that are
// also io.Closer (rotated files) are closed with it.
type streamWriter struct {
	out      io.Writer
	writer   *bufio.Writer
	format   string
	minLevel logmessage.Level
	mutex    sync.Mutex
}

func newStreamWriter(out io.Writer, format string, minLevel logmessage.Level) *streamWriter {
	return &streamWriter{
		out:      out,
		writer:   bufio.NewWriter(out),
		format:   format,
		minLevel: minLevel,
	}
}

func (w *streamWriter) Write(entry OutputEntry) error {
	if level, ok := logmessage.ParseLevel(entry.Level); ok && level < w.minLevel {
		return nil
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.writer == nil {
		return fmt.Errorf("output writer closed")
	}
	if _, err := w.writer.WriteString(formatEntry(entry, w.format)); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

func (w *streamWriter) Flush() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.writer != nil {
		return w.writer.Flush()
	}
	return nil
}

func (w *streamWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.writer == nil {
		return nil
	}
	err := w.writer.Flush()
	w.writer = nil
	if closer, ok := w.out.(io.Closer); ok && w.out != os.Stdout && w.out != os.Stderr {
		if closeErr := closer.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// formatEntry renders "[time][level][logger] message", or the raw record
// in raw format
func formatEntry(entry OutputEntry, format string) string {
	if format == config.FormatRaw && entry.Raw != "" {
		return entry.Raw + "\n"
	}
	logger := entry.Logger
	if logger == "" {
		logger = "-"
	}
	return fmt.Sprintf("[%s][%s][%s] %s\n",
		entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		entry.Level,
		logger,
		entry.Message,
	)
}

var _ receiver.Handler = (*receiverOutput)(nil)
