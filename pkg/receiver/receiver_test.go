package receiver_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-logreceiver/pkg/columnizer"
	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver/receivertest"
)

const waitTimeout = 5 * time.Second

func appColumnizer() columnizer.Columnizer {
	return columnizer.Columnizer{
		Name:           "app",
		DateTimeFormat: "yyyy-MM-dd HH:mm:ss",
		Columns: []columnizer.Column{
			{Name: "time", Type: columnizer.ColumnTimestamp, Expression: `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`},
			{Name: "level", Type: columnizer.ColumnLevel, Prefix: ` \[`, Expression: `\w+`, Suffix: `\]`},
			{Name: "logger", Type: columnizer.ColumnLogger, Prefix: ` `, Expression: `[\w.]+`},
			{Name: "message", Type: columnizer.ColumnMessage, Prefix: ` - `, Expression: `.*`},
		},
	}
}

func newFeedReceiver(t *testing.T, options receiver.Options) (*receiver.Receiver, chan<- string) {
	t.Helper()
	lines := make(chan string, 1024)
	if len(options.Columnizer.Columns) == 0 {
		options.Columnizer = appColumnizer()
	}
	r := receiver.New(receivertest.LineFeed(lines), options)
	t.Cleanup(func() { _ = r.Dispose() })
	return r, lines
}

func TestReceiver_InitialState(t *testing.T) {
	r, _ := newFeedReceiver(t, receiver.Options{ID: "feed-1"})

	assert.Equal(t, receiver.StateCreated, r.State())
	assert.Equal(t, "feed-1", r.ID())
	assert.Equal(t, "Line feed", r.DisplayInfo())
	assert.Nil(t, r.Pipeline())

	generated := receiver.New(&receivertest.FuncSource{}, receiver.Options{})
	assert.Len(t, generated.ID(), 36)
}

func TestReceiver_InitializeValidation(t *testing.T) {
	t.Run("nil handler", func(t *testing.T) {
		r, _ := newFeedReceiver(t, receiver.Options{})
		err := r.Initialize(nil)
		assert.True(t, errors.IsValidationError(err))
		assert.Equal(t, receiver.StateCreated, r.State())
	})

	t.Run("bad columnizer", func(t *testing.T) {
		c := appColumnizer()
		c.Columns[1].Expression = `(`
		r, _ := newFeedReceiver(t, receiver.Options{Columnizer: c})
		err := r.Initialize(receivertest.NewRecordingHandler())
		assert.True(t, errors.IsValidationError(err))
		assert.Equal(t, receiver.StateCreated, r.State())
	})

	t.Run("source validation", func(t *testing.T) {
		started := false
		r := receiver.New(&receivertest.FuncSource{
			ValidateFn: func() error { return errors.NewValidationError("missing path", nil) },
			RunFn: func(ctx context.Context, p *receiver.Pipeline) error {
				started = true
				return nil
			},
		}, receiver.Options{})
		err := r.Initialize(receivertest.NewRecordingHandler())
		assert.True(t, errors.IsValidationError(err))
		assert.Equal(t, receiver.StateCreated, r.State())
		assert.False(t, started)
	})

	t.Run("prepare failure", func(t *testing.T) {
		r := receiver.New(&receivertest.FuncSource{
			PrepareFn: func() error { return errors.NewIOError("cannot stat", nil) },
		}, receiver.Options{})
		err := r.Initialize(receivertest.NewRecordingHandler())
		assert.True(t, errors.IsIOError(err))
		assert.Equal(t, receiver.StateCreated, r.State())
	})
}

func TestReceiver_LifecycleTransitions(t *testing.T) {
	r, _ := newFeedReceiver(t, receiver.Options{})

	assert.True(t, errors.IsValidationError(r.Pause()))
	assert.True(t, errors.IsValidationError(r.Resume()))

	require.NoError(t, r.Initialize(receivertest.NewRecordingHandler()))
	assert.Equal(t, receiver.StateRunning, r.State())
	assert.True(t, errors.IsValidationError(r.Initialize(receivertest.NewRecordingHandler())))

	require.NoError(t, r.Pause())
	assert.Equal(t, receiver.StatePaused, r.State())
	require.NoError(t, r.Pause())

	require.NoError(t, r.Resume())
	assert.Equal(t, receiver.StateRunning, r.State())
	require.NoError(t, r.Resume())

	require.NoError(t, r.Dispose())
	assert.Equal(t, receiver.StateDisposed, r.State())
}

func TestReceiver_DisposeIsTerminalAndIdempotent(t *testing.T) {
	r, _ := newFeedReceiver(t, receiver.Options{})
	require.NoError(t, r.Initialize(receivertest.NewRecordingHandler()))

	require.NoError(t, r.Dispose())
	require.NoError(t, r.Dispose())

	err := r.Initialize(receivertest.NewRecordingHandler())
	assert.True(t, errors.IsConflictError(err))
	assert.True(t, errors.IsConflictError(r.Pause()))
	assert.True(t, errors.IsConflictError(r.Resume()))
	assert.Equal(t, receiver.StateDisposed, r.State())

	neverStarted, _ := newFeedReceiver(t, receiver.Options{})
	require.NoError(t, neverStarted.Dispose())
	assert.True(t, errors.IsConflictError(neverStarted.Initialize(receivertest.NewRecordingHandler())))
}

func TestReceiver_ParsesAndIndexes(t *testing.T) {
	r, lines := newFeedReceiver(t, receiver.Options{})
	handler := receivertest.NewRecordingHandler()
	require.NoError(t, r.Initialize(handler))

	lines <- "2024-01-15 10:30:45 [INFO] MyApp.Service - started"
	lines <- "2024-01-15 10:30:46 [WARN] MyApp.Db - slow"

	msgs := handler.WaitForMessages(t, 2, waitTimeout)
	assert.Equal(t, uint64(0), msgs[0].Index)
	assert.Equal(t, uint64(1), msgs[1].Index)
	assert.Equal(t, "MyApp.Service", msgs[0].Logger)
	assert.Equal(t, "started", msgs[0].Message)
	assert.Equal(t, logmessage.LevelWarn, msgs[1].Level)
	assert.Equal(t, "feed", msgs[0].Source)
}

func TestReceiver_GarbageLineRaisesOneErrorWithoutIndex(t *testing.T) {
	r, lines := newFeedReceiver(t, receiver.Options{})
	handler := receivertest.NewRecordingHandler()
	require.NoError(t, r.Initialize(handler))

	lines <- "garbage line"
	errs := handler.WaitForErrors(t, 1, waitTimeout)
	require.Len(t, errs, 1)
	assert.Equal(t, errors.ErrorTypeParse, errs[0].Type)
	assert.Equal(t, "garbage line", errs[0].Detail)
	assert.Equal(t, 0, handler.MessageCount())
	assert.Equal(t, uint64(0), r.Pipeline().Count())

	lines <- "2024-01-15 10:30:45 [INFO] MyApp.Service - started"
	msgs := handler.WaitForMessages(t, 1, waitTimeout)
	assert.Equal(t, uint64(0), msgs[0].Index)
	assert.Len(t, handler.Errors(), 1)
}

func TestReceiver_IdenticalErrorsCollapse(t *testing.T) {
	r, lines := newFeedReceiver(t, receiver.Options{})
	handler := receivertest.NewRecordingHandler()
	require.NoError(t, r.Initialize(handler))

	for i := 0; i < 10; i++ {
		lines <- "garbage"
	}
	lines <- "2024-01-15 10:30:45 [INFO] a - ok"
	handler.WaitForMessages(t, 1, waitTimeout)

	errs := handler.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "garbage", errs[0].Detail)
}

func TestReceiver_DifferentBadRecordsAreReportedSeparately(t *testing.T) {
	r, lines := newFeedReceiver(t, receiver.Options{})
	handler := receivertest.NewRecordingHandler()
	require.NoError(t, r.Initialize(handler))

	lines <- "first bad record"
	lines <- "second, different bad record"

	errs := handler.WaitForErrors(t, 2, waitTimeout)
	assert.Equal(t, "first bad record", errs[0].Detail)
	assert.Equal(t, "second, different bad record", errs[1].Detail)
}

func TestReceiver_BatchesUnderLoad(t *testing.T) {
	r, lines := newFeedReceiver(t, receiver.Options{BatchSize: 50, BatchInterval: time.Second})
	handler := receivertest.NewRecordingHandler()
	require.NoError(t, r.Initialize(handler))

	for i := 0; i < 200; i++ {
		lines <- fmt.Sprintf("2024-01-15 10:30:45 [INFO] load - line %d", i)
	}

	msgs := handler.WaitForMessages(t, 200, waitTimeout)
	single, batch := handler.Calls()
	assert.Equal(t, 0, single)
	assert.Equal(t, 4, batch)
	for i, msg := range msgs {
		assert.Equal(t, uint64(i), msg.Index)
	}
}

func TestReceiver_SingleMessageUsesHandleMessage(t *testing.T) {
	r, lines := newFeedReceiver(t, receiver.Options{BatchInterval: 10 * time.Millisecond})
	handler := receivertest.NewRecordingHandler()
	require.NoError(t, r.Initialize(handler))

	lines <- "2024-01-15 10:30:45 [INFO] a - one"
	handler.WaitForMessages(t, 1, waitTimeout)

	single, batch := handler.Calls()
	assert.Equal(t, 1, single)
	assert.Equal(t, 0, batch)
}

func TestReceiver_PauseHoldsAndResumeFlushes(t *testing.T) {
	r, lines := newFeedReceiver(t, receiver.Options{BatchInterval: 10 * time.Millisecond})
	handler := receivertest.NewRecordingHandler()
	require.NoError(t, r.Initialize(handler))
	require.NoError(t, r.Pause())

	for i := 0; i < 5; i++ {
		lines <- fmt.Sprintf("2024-01-15 10:30:45 [INFO] a - held %d", i)
	}
	lines <- "garbage"

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, handler.MessageCount())
	assert.Equal(t, 0, handler.ErrorCount())

	require.NoError(t, r.Resume())
	msgs := handler.WaitForMessages(t, 5, waitTimeout)
	handler.WaitForErrors(t, 1, waitTimeout)
	for i, msg := range msgs {
		assert.Equal(t, fmt.Sprintf("held %d", i), msg.Message)
	}
}

func TestReceiver_PauseBufferDropsOldest(t *testing.T) {
	r, lines := newFeedReceiver(t, receiver.Options{BatchSize: 1, PauseBufferSize: 3})
	handler := receivertest.NewRecordingHandler()
	require.NoError(t, r.Initialize(handler))
	require.NoError(t, r.Pause())

	for i := 0; i < 5; i++ {
		lines <- fmt.Sprintf("2024-01-15 10:30:45 [INFO] a - m%d", i)
	}
	require.Eventually(t, func() bool { return r.Pipeline().Count() == 5 }, waitTimeout, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, r.Resume())
	msgs := handler.WaitForMessages(t, 3, waitTimeout)
	assert.Equal(t, "m2", msgs[0].Message)
	assert.Equal(t, "m4", msgs[2].Message)

	errs := handler.WaitForErrors(t, 1, waitTimeout)
	assert.Contains(t, errs[0].Message, "2 records dropped")
}

func TestReceiver_HandlerPanicBecomesLogError(t *testing.T) {
	r, lines := newFeedReceiver(t, receiver.Options{BatchInterval: 10 * time.Millisecond})

	reported := make(chan *logmessage.LogError, 4)
	delivered := make(chan *logmessage.LogMessage, 4)
	handler := &receivertest.MockHandler{}
	handler.On("HandleMessage", mock.Anything).Panic("boom").Once()
	handler.On("HandleMessage", mock.Anything).Run(func(args mock.Arguments) {
		delivered <- args.Get(0).(*logmessage.LogMessage)
	}).Return()
	handler.On("HandleError", mock.Anything).Run(func(args mock.Arguments) {
		reported <- args.Get(0).(*logmessage.LogError)
	}).Return()

	require.NoError(t, r.Initialize(handler))
	lines <- "2024-01-15 10:30:45 [INFO] a - first"

	select {
	case logErr := <-reported:
		assert.Equal(t, errors.ErrorTypeHandler, logErr.Type)
		assert.Contains(t, logErr.Message, "boom")
	case <-time.After(waitTimeout):
		t.Fatal("handler panic was not reported")
	}

	lines <- "2024-01-15 10:30:45 [INFO] a - second"
	select {
	case msg := <-delivered:
		assert.Equal(t, "second", msg.Message)
	case <-time.After(waitTimeout):
		t.Fatal("delivery did not continue after a panic")
	}
	assert.Equal(t, receiver.StateRunning, r.State())
}

func TestReceiver_FatalSourceErrorFaults(t *testing.T) {
	r := receiver.New(&receivertest.FuncSource{
		RunFn: func(ctx context.Context, p *receiver.Pipeline) error {
			return errors.NewFatalResourceError("cannot bind", fmt.Errorf("address in use"))
		},
	}, receiver.Options{})
	defer r.Dispose()

	handler := receivertest.NewRecordingHandler()
	require.NoError(t, r.Initialize(handler))

	require.Eventually(t, func() bool { return r.State() == receiver.StateFaulted }, waitTimeout, 10*time.Millisecond)
	errs := handler.WaitForErrors(t, 1, waitTimeout)
	assert.Equal(t, errors.ErrorTypeFatalResource, errs[0].Type)
	assert.Equal(t, logmessage.SeverityFatal, errs[0].Severity)

	assert.True(t, errors.IsValidationError(r.Pause()))
	require.NoError(t, r.Dispose())
	assert.Equal(t, receiver.StateDisposed, r.State())
}

func TestReceiver_FatalErrorWhilePausedReleasesHeldRecords(t *testing.T) {
	paused := make(chan struct{})
	r := receiver.New(&receivertest.FuncSource{
		RunFn: func(ctx context.Context, p *receiver.Pipeline) error {
			<-paused
			p.Line("feed", "written before the failure")
			return errors.NewFatalResourceError("device removed", nil)
		},
	}, receiver.Options{BatchInterval: 10 * time.Millisecond})
	defer r.Dispose()

	handler := receivertest.NewRecordingHandler()
	require.NoError(t, r.Initialize(handler))
	require.NoError(t, r.Pause())
	close(paused)

	errs := handler.WaitForErrors(t, 1, waitTimeout)
	assert.Equal(t, logmessage.SeverityFatal, errs[0].Severity)

	msgs := handler.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "written before the failure", msgs[0].Message)

	require.Eventually(t, func() bool { return r.State() == receiver.StateFaulted }, waitTimeout, 10*time.Millisecond)
	assert.True(t, errors.IsValidationError(r.Resume()))
}

func TestReceiver_SourcePanicFaults(t *testing.T) {
	r := receiver.New(&receivertest.FuncSource{
		RunFn: func(ctx context.Context, p *receiver.Pipeline) error {
			panic("nil map")
		},
	}, receiver.Options{})
	defer r.Dispose()

	handler := receivertest.NewRecordingHandler()
	require.NoError(t, r.Initialize(handler))

	errs := handler.WaitForErrors(t, 1, waitTimeout)
	assert.Equal(t, errors.ErrorTypeInternal, errs[0].Type)
	assert.Contains(t, errs[0].Message, "nil map")
	require.Eventually(t, func() bool { return r.State() == receiver.StateFaulted }, waitTimeout, 10*time.Millisecond)
}

func TestReceiver_NoCallbacksAfterDispose(t *testing.T) {
	r := receiver.New(&receivertest.FuncSource{
		RunFn: func(ctx context.Context, p *receiver.Pipeline) error {
			for i := 0; ; i++ {
				if !p.Line("spin", fmt.Sprintf("2024-01-15 10:30:45 [INFO] a - %d", i)) {
					return nil
				}
			}
		},
	}, receiver.Options{Columnizer: appColumnizer()})

	handler := receivertest.NewRecordingHandler()
	require.NoError(t, r.Initialize(handler))
	handler.WaitForMessages(t, 500, waitTimeout)

	require.NoError(t, r.Dispose())
	count := handler.MessageCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, count, handler.MessageCount())
}

func TestReceiver_PollingSourceWaitsWhilePaused(t *testing.T) {
	polls := make(chan struct{}, 100)
	r := receiver.New(&receivertest.FuncSource{
		RunFn: func(ctx context.Context, p *receiver.Pipeline) error {
			for {
				if err := p.WaitActive(ctx); err != nil {
					return nil
				}
				polls <- struct{}{}
				if err := receiver.Sleep(ctx, 5*time.Millisecond); err != nil {
					return nil
				}
			}
		},
	}, receiver.Options{})
	defer r.Dispose()

	require.NoError(t, r.Initialize(receivertest.NewRecordingHandler()))
	<-polls
	require.NoError(t, r.Pause())
	time.Sleep(50 * time.Millisecond)
	for len(polls) > 0 {
		<-polls
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, len(polls))

	require.NoError(t, r.Resume())
	select {
	case <-polls:
	case <-time.After(waitTimeout):
		t.Fatal("polling did not resume")
	}

	require.NoError(t, r.Pause())
	require.NoError(t, r.Dispose())
}
