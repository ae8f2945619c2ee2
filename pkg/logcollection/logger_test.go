package logcollection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-logreceiver/pkg/logging"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) record(level string, format string, args ...interface{}) {
	r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
}

func (r *recordingLogger) Debugf(format string, args ...interface{}) { r.record("DEBUG", format, args...) }
func (r *recordingLogger) Infof(format string, args ...interface{})  { r.record("INFO", format, args...) }
func (r *recordingLogger) Warnf(format string, args ...interface{})  { r.record("WARN", format, args...) }
func (r *recordingLogger) Errorf(format string, args ...interface{}) { r.record("ERROR", format, args...) }

func TestZapAdapter_FileOutputWithLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")

	logger, err := NewZapAdapter(ZapConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Debugf("hidden debug")
	logger.WithReceiver("r1").Infof("receiver %s started", "tcp")
	logger.LogWithContext(ContextWithReceiver(context.Background(), "r2"), WarnLevel, "slow handler",
		Int("pending", 12))

	logger.SetLevel(ErrorLevel)
	logger.Warnf("suppressed warning")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `"msg":"receiver tcp started"`)
	assert.Contains(t, out, `"receiver_id":"r1"`)
	assert.Contains(t, out, `"receiver_id":"r2"`)
	assert.Contains(t, out, `"pending":12`)
	assert.NotContains(t, out, "hidden debug")
	assert.NotContains(t, out, "suppressed warning")
}

func TestNewStructuredLogger(t *testing.T) {
	logger, err := NewStructuredLogger("zap", InfoLevel)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewStructuredLogger("logrus", InfoLevel)
	assert.Error(t, err)
}

func TestValidateLoggerConfig(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*LoggerConfig)
		wantErr bool
	}{
		{"default", func(*LoggerConfig) {}, false},
		{"console", func(c *LoggerConfig) { c.Format = "console" }, false},
		{"unknown backend", func(c *LoggerConfig) { c.Backend = "slog" }, true},
		{"unknown format", func(c *LoggerConfig) { c.Format = "xml" }, true},
		{"empty output", func(c *LoggerConfig) { c.Output = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLoggerConfig()
			tt.modify(&cfg)
			err := ValidateLoggerConfig(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
}

func TestWrapExistingLogger_RendersFields(t *testing.T) {
	base := &recordingLogger{}
	logger := WrapExistingLogger(base)

	logger.WithReceiver("r1").WithFields(Source("app.log")).Warnf("lagging %d lines", 3)
	logger.LogWithFields(ErrorLevel, "failed", Error(fmt.Errorf("boom")))
	logger.Infof("plain")

	assert.Equal(t, []string{
		"WARN lagging 3 lines [receiver_id=r1 source=app.log]",
		"ERROR failed [error=boom]",
		"INFO plain",
	}, base.lines)
}

func TestNewLoggingAdapter(t *testing.T) {
	base := &recordingLogger{}
	logger := NewLoggingAdapter(WrapExistingLogger(base), "agent: ")

	logger.Infof("started %d receivers", 2)
	logger.LogLevelf(logging.LogLevelError, "failed")

	assert.Equal(t, []string{"INFO agent: started 2 receivers", "ERROR agent: failed"}, base.lines)
}

func TestCreateLoggerForReceiver(t *testing.T) {
	base := &recordingLogger{}
	logger := CreateLoggerForReceiver("r1", "tcp", WrapExistingLogger(base))

	logger.Infof("up")

	assert.Equal(t, []string{"INFO up [receiver_id=r1 component=receiver receiver_type=tcp]"}, base.lines)
}

func TestLogField_Validate(t *testing.T) {
	assert.NoError(t, String("k", "v").Validate())
	assert.Error(t, String("", "v").Validate())
	assert.Error(t, Object("k", nil).Validate())
	assert.Error(t, LogField{Key: "error", Value: "text", Type: ErrorField}.Validate())
}
