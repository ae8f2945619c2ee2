package logcollection

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logcollection/config"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver/receivertest"
)

// syncBuffer is a bytes.Buffer safe for the flush loop and the test to share
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func nopLogger() StructuredLogger {
	return WrapExistingLogger(logging.NewNopLogger())
}

func startService(t *testing.T, cfg config.OutputConfig) (OutputService, *syncBuffer) {
	t.Helper()
	stdout := &syncBuffer{}
	service := NewOutputServiceWithStreams(cfg, nopLogger(), stdout, &syncBuffer{})
	require.NoError(t, service.Start(context.Background()))
	t.Cleanup(func() { _ = service.Stop() })
	return service, stdout
}

func message(level logmessage.Level, logger, text string) *logmessage.LogMessage {
	return &logmessage.LogMessage{
		Timestamp: time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC),
		Level:     level,
		Logger:    logger,
		Message:   text,
		RawData:   "raw " + text,
		Source:    "test",
	}
}

func TestOutputService_WritesPlainLines(t *testing.T) {
	service, stdout := startService(t, config.DefaultOutputConfig())

	handler, err := service.Handler("r1")
	require.NoError(t, err)

	handler.HandleMessage(message(logmessage.LevelInfo, "App.Main", "started"))
	handler.HandleMessages([]*logmessage.LogMessage{
		message(logmessage.LevelWarn, "", "disk low"),
		message(logmessage.LevelError, "App.Db", "connection lost"),
	})
	require.NoError(t, service.Flush())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Equal(t, []string{
		"[2024-01-15T10:30:45.000Z][info][App.Main] started",
		"[2024-01-15T10:30:45.000Z][warn][-] disk low",
		"[2024-01-15T10:30:45.000Z][error][App.Db] connection lost",
	}, lines)

	status, err := service.GetReceiverStatus("r1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), status.MessagesWritten)
	assert.True(t, status.Active)
	assert.False(t, status.LastActivity.IsZero())
}

func TestOutputService_FileTargetRawFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "received.log")
	target := config.DefaultFileTarget(path)
	target.Format = config.FormatRaw

	service := NewOutputService(config.OutputConfig{
		Enabled: true,
		Targets: []config.OutputTargetConfig{target},
	}, nopLogger())
	require.NoError(t, service.Start(context.Background()))

	handler, err := service.Handler("r1")
	require.NoError(t, err)
	handler.HandleMessage(message(logmessage.LevelInfo, "App", "one"))
	handler.HandleMessage(message(logmessage.LevelInfo, "App", "two"))

	require.NoError(t, service.Stop())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "raw one\nraw two\n", string(data))
}

func TestOutputService_MinLevel(t *testing.T) {
	service, stdout := startService(t, config.OutputConfig{
		Enabled: true,
		Targets: []config.OutputTargetConfig{{Type: config.TargetStdout, MinLevel: "warn"}},
	})

	handler, err := service.Handler("r1")
	require.NoError(t, err)
	handler.HandleMessages([]*logmessage.LogMessage{
		message(logmessage.LevelDebug, "App", "noise"),
		message(logmessage.LevelError, "App", "failure"),
	})
	require.NoError(t, service.Flush())

	assert.NotContains(t, stdout.String(), "noise")
	assert.Contains(t, stdout.String(), "failure")
}

func TestOutputService_ErrorsAreCountedAndBounded(t *testing.T) {
	cfg := config.DefaultOutputConfig()
	cfg.MaxErrors = 2
	service, stdout := startService(t, cfg)

	handler, err := service.Handler("r1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		logErr := logmessage.NewLogError("Parse error", errors.NewParseError("record does not match", nil))
		logErr.Detail = "garbage"
		handler.HandleError(logErr)
	}
	require.NoError(t, service.Flush())

	status, err := service.GetReceiverStatus("r1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), status.ErrorsReported)
	assert.Len(t, status.Errors, 2)
	assert.Contains(t, stdout.String(), "[warn][receiver.r1] Parse error: record does not match")

	system := service.GetSystemStatus()
	assert.Equal(t, int64(3), system.TotalErrors)
	assert.Equal(t, int64(0), system.TotalMessages)
}

func TestOutputService_Lifecycle(t *testing.T) {
	service := NewOutputServiceWithStreams(config.DefaultOutputConfig(), nopLogger(), &syncBuffer{}, &syncBuffer{})

	_, err := service.Handler("early")
	assert.True(t, errors.IsConflictError(err))
	assert.True(t, errors.IsConflictError(service.Stop()))

	require.NoError(t, service.Start(context.Background()))
	assert.True(t, errors.IsConflictError(service.Start(context.Background())))

	_, err = service.Handler("r1")
	require.NoError(t, err)
	_, err = service.Handler("r1")
	assert.True(t, errors.IsConflictError(err))

	status := service.GetSystemStatus()
	assert.True(t, status.Active)
	assert.Equal(t, 1, status.TotalReceivers)
	assert.Equal(t, []string{"stdout"}, status.OutputTargets)

	require.NoError(t, service.Unregister("r1"))
	assert.True(t, errors.IsValidationError(service.Unregister("r1")))
	_, err = service.GetReceiverStatus("r1")
	assert.True(t, errors.IsValidationError(err))

	require.NoError(t, service.Stop())
	assert.False(t, service.GetSystemStatus().Active)
}

func TestOutputService_UnregisteredHandlerDiscards(t *testing.T) {
	service, stdout := startService(t, config.DefaultOutputConfig())

	handler, err := service.Handler("r1")
	require.NoError(t, err)
	require.NoError(t, service.Unregister("r1"))

	handler.HandleMessage(message(logmessage.LevelInfo, "App", "late"))
	require.NoError(t, service.Flush())

	assert.Empty(t, stdout.String())
	assert.Equal(t, int64(0), service.GetSystemStatus().TotalMessages)
}

func TestOutputService_InvalidConfiguration(t *testing.T) {
	service := NewOutputService(config.OutputConfig{
		Enabled: true,
		Targets: []config.OutputTargetConfig{{Type: "elasticsearch"}},
	}, nopLogger())

	err := service.Start(context.Background())
	assert.True(t, errors.IsValidationError(err))
	assert.False(t, service.GetSystemStatus().Active)
}

func TestOutputService_ConsumesReceiver(t *testing.T) {
	cfg := config.DefaultOutputConfig()
	cfg.FlushInterval = 10 * time.Millisecond
	service, stdout := startService(t, cfg)

	lines := make(chan string, 8)
	r := receiver.New(receivertest.LineFeed(lines), receiver.Options{ID: "feed"})
	t.Cleanup(func() { _ = r.Dispose() })

	handler, err := service.Handler(r.ID())
	require.NoError(t, err)
	require.NoError(t, r.Initialize(handler))

	lines <- "ERROR something broke"
	lines <- "all good"

	require.Eventually(t, func() bool {
		status, err := service.GetReceiverStatus("feed")
		return err == nil && status.MessagesWritten == 2
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Count(stdout.String(), "\n") == 2
	}, 5*time.Second, 10*time.Millisecond)

	out := stdout.String()
	assert.Contains(t, out, "[error][-] ERROR something broke")
	assert.Contains(t, out, "[info][-] all good")
}

func TestOutputConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.OutputConfig
		wantErr bool
	}{
		{"default", config.DefaultOutputConfig(), false},
		{"disabled without targets", config.OutputConfig{}, false},
		{"enabled without targets", config.OutputConfig{Enabled: true}, true},
		{"file without path", config.OutputConfig{Enabled: true, Targets: []config.OutputTargetConfig{{Type: "file"}}}, true},
		{"unknown format", config.OutputConfig{Enabled: true, Targets: []config.OutputTargetConfig{{Type: "stdout", Format: "xml"}}}, true},
		{"negative rotation", config.OutputConfig{Enabled: true, Targets: []config.OutputTargetConfig{
			{Type: "file", Path: "x.log", Rotation: config.RotationConfig{MaxBackups: -1}},
		}}, true},
		{"file target", config.OutputConfig{Enabled: true, Targets: []config.OutputTargetConfig{config.DefaultFileTarget("x.log")}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
