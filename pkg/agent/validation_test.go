package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/core-tools/hsu-logreceiver/pkg/columnizer"
	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	logconfig "github.com/core-tools/hsu-logreceiver/pkg/logcollection/config"
)

func validConfig() *AgentConfig {
	config := &AgentConfig{
		Receivers: []ReceiverConfig{
			{ID: "file-1", Type: ReceiverTypeFile, Path: "/var/log/app.log"},
			{ID: "tcp-1", Type: ReceiverTypeTcp, Address: "127.0.0.1:4505"},
		},
	}
	setConfigDefaults(config)
	return config
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*AgentConfig)
		wantErr string
	}{
		{"valid", func(*AgentConfig) {}, ""},
		{"bad log level", func(c *AgentConfig) { c.Agent.LogLevel = "loud" }, "invalid agent configuration"},
		{"bad log format", func(c *AgentConfig) { c.Agent.LogFormat = "xml" }, "invalid agent configuration"},
		{"negative shutdown", func(c *AgentConfig) { c.Agent.ShutdownTimeout = Duration(-time.Second) }, "invalid agent configuration"},
		{"duplicate ids", func(c *AgentConfig) { c.Receivers[1].ID = "file-1" }, "duplicate receiver ID"},
		{"unknown type", func(c *AgentConfig) { c.Receivers[0].Type = "kafka" }, "invalid receiver at index 0"},
		{"file without path", func(c *AgentConfig) { c.Receivers[0].Path = "" }, "invalid receiver at index 0"},
		{"tcp without address", func(c *AgentConfig) { c.Receivers[1].Address = "" }, "invalid receiver at index 1"},
		{"tcp bad port", func(c *AgentConfig) { c.Receivers[1].Address = "localhost:99999" }, "invalid receiver at index 1"},
		{"negative batch", func(c *AgentConfig) { c.Receivers[0].BatchSize = -1 }, "invalid receiver at index 0"},
		{"negative interval", func(c *AgentConfig) { c.Receivers[0].PollInterval = Duration(-time.Second) }, "invalid receiver at index 0"},
		{"unknown columnizer", func(c *AgentConfig) { c.Receivers[0].Columnizer = "missing" }, "invalid receiver at index 0"},
		{"columnizer and layout", func(c *AgentConfig) {
			layout := columnizer.PlainColumnizer()
			c.Receivers[0].Columnizer = "plain"
			c.Receivers[0].Layout = &layout
		}, "invalid receiver at index 0"},
		{"invalid layout", func(c *AgentConfig) {
			c.Receivers[0].Layout = &columnizer.Columnizer{Name: "empty"}
		}, "invalid receiver at index 0"},
		{"unnamed columnizer", func(c *AgentConfig) {
			c.Columnizers = []columnizer.Columnizer{{Columns: columnizer.PlainColumnizer().Columns}}
		}, "has no name"},
		{"duplicate columnizer", func(c *AgentConfig) {
			c.Columnizers = []columnizer.Columnizer{columnizer.PlainColumnizer(), columnizer.PlainColumnizer()}
		}, "duplicate columnizer name"},
		{"bad output", func(c *AgentConfig) {
			c.Output = &OutputOptions{Targets: []logconfig.OutputTargetConfig{{Type: "socket"}}}
		}, "invalid output configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.modify(config)

			err := ValidateConfig(config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.True(t, errors.IsValidationError(err))
				assert.True(t, containsMessage(err, tt.wantErr), "error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_ReportsAllProblems(t *testing.T) {
	config := validConfig()
	config.Receivers[0].Path = ""
	config.Receivers[1].Address = ""

	err := ValidateConfig(config)
	collection, ok := err.(*errors.ErrorCollection)
	if assert.True(t, ok) {
		assert.Len(t, collection.Errors, 2)
	}

	assert.True(t, errors.IsValidationError(ValidateConfig(nil)))
}

func TestValidateReceiverID(t *testing.T) {
	assert.NoError(t, ValidateReceiverID("app.log_1-a"))
	assert.Error(t, ValidateReceiverID(""))
	assert.Error(t, ValidateReceiverID("has space"))
	assert.Error(t, ValidateReceiverID(strings.Repeat("a", 65)))
}

func TestValidateListenAddress(t *testing.T) {
	assert.NoError(t, ValidateListenAddress(":4505"))
	assert.NoError(t, ValidateListenAddress("0.0.0.0:0"))
	assert.Error(t, ValidateListenAddress(""))
	assert.Error(t, ValidateListenAddress("localhost"))
	assert.Error(t, ValidateListenAddress("localhost:http"))
	assert.Error(t, ValidateListenAddress("localhost:70000"))
}

func TestValidateTimeout(t *testing.T) {
	assert.NoError(t, ValidateTimeout(time.Second, "shutdown"))
	assert.Error(t, ValidateTimeout(0, "shutdown"))
	assert.Error(t, ValidateTimeout(-time.Second, "shutdown"))
}

// containsMessage searches err and the errors it wraps for text
func containsMessage(err error, text string) bool {
	if err == nil {
		return false
	}
	if strings.Contains(err.Error(), text) {
		return true
	}
	switch e := err.(type) {
	case *errors.ErrorCollection:
		for _, inner := range e.Errors {
			if containsMessage(inner, text) {
				return true
			}
		}
	case *errors.DomainError:
		return containsMessage(e.Cause, text)
	}
	return false
}
