package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-logreceiver/pkg/columnizer"
	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	logconfig "github.com/core-tools/hsu-logreceiver/pkg/logcollection/config"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

const sampleYAML = `
agent:
  name: "edge-agent"
  log_level: "debug"
  shutdown_timeout: "3s"

columnizers:
  - name: "app"
    date_time_format: "yyyy-MM-dd HH:mm:ss"
    columns:
      - name: "timestamp"
        type: "timestamp"
        expression: '\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}'
      - name: "level"
        type: "level"
        prefix: ' \['
        expression: '[A-Z]+'
        suffix: '\]'
      - name: "message"
        type: "message"
        prefix: ' '
        expression: '.*'

receivers:
  - id: "app-log"
    type: "file"
    path: "/var/log/app.log"
    columnizer: "app"
    poll_interval: "250ms"
  - type: "TCP"
    address: ":4505"
    backoff:
      initial_delay: "100ms"
      max_delay: "2s"
      backoff_rate: 1.5
  - id: "disabled"
    type: "udp"
    address: ":7071"
    enabled: false

output:
  targets:
    - type: "file"
      path: "/tmp/received.log"
      format: "raw"
  flush_interval: "2s"
  max_errors: 5
`

func TestParseConfig_YAML(t *testing.T) {
	config, err := ParseConfig([]byte(sampleYAML), "yaml")
	require.NoError(t, err)

	assert.Equal(t, "edge-agent", config.Agent.Name)
	assert.Equal(t, "debug", config.Agent.LogLevel)
	assert.Equal(t, "console", config.Agent.LogFormat)
	assert.Equal(t, 3*time.Second, config.Agent.ShutdownTimeout.Std())

	require.Len(t, config.Columnizers, 1)
	assert.Equal(t, "app", config.Columnizers[0].Name)
	assert.Equal(t, columnizer.ColumnLevel, config.Columnizers[0].Columns[1].Type)

	require.Len(t, config.Receivers, 3)

	file := config.Receivers[0]
	assert.Equal(t, ReceiverTypeFile, file.Type)
	assert.Equal(t, 250*time.Millisecond, file.PollInterval.Std())
	assert.True(t, file.IsEnabled())

	tcp := config.Receivers[1]
	assert.Equal(t, ReceiverTypeTcp, tcp.Type)
	_, err = uuid.Parse(tcp.ID)
	assert.NoError(t, err, "generated id should be a uuid")
	assert.Equal(t, receiver.BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		BackoffRate:  1.5,
	}, tcp.backoff())

	assert.False(t, config.Receivers[2].IsEnabled())

	output := config.OutputConfig()
	assert.True(t, output.Enabled)
	assert.Equal(t, 2*time.Second, output.FlushInterval)
	assert.Equal(t, 5, output.MaxErrors)
	require.Len(t, output.Targets, 1)
	assert.Equal(t, logconfig.TargetFile, output.Targets[0].Type)

	assert.NoError(t, ValidateConfig(config))
}

func TestParseConfig_TOML(t *testing.T) {
	data := `
[agent]
name = "toml-agent"
shutdown_timeout = "4s"

[[receivers]]
id = "journal"
type = "journal"
filters = ["_SYSTEMD_UNIT=sshd.service"]

[[receivers]]
id = "poller"
type = "http"
url = "http://localhost:8080/log"
interval = "1s"
columnizer = "default"
`
	config, err := ParseConfig([]byte(data), "toml")
	require.NoError(t, err)

	assert.Equal(t, "toml-agent", config.Agent.Name)
	assert.Equal(t, 4*time.Second, config.Agent.ShutdownTimeout.Std())
	require.Len(t, config.Receivers, 2)
	assert.Equal(t, []string{"_SYSTEMD_UNIT=sshd.service"}, config.Receivers[0].Filters)
	assert.Equal(t, time.Second, config.Receivers[1].Interval.Std())

	col, err := config.ResolveColumnizer(config.Receivers[1])
	require.NoError(t, err)
	assert.Equal(t, "default", col.Name)

	assert.NoError(t, ValidateConfig(config))
}

func TestParseConfig_Defaults(t *testing.T) {
	config, err := ParseConfig([]byte("receivers:\n  - type: grpc\n    address: \":4600\"\n"), "yaml")
	require.NoError(t, err)

	assert.Equal(t, DefaultAgentName, config.Agent.Name)
	assert.Equal(t, "info", config.Agent.LogLevel)
	assert.Equal(t, "stdout", config.Agent.LogOutput)
	assert.Equal(t, DefaultShutdownTimeout, config.Agent.ShutdownTimeout.Std())
	assert.NotEmpty(t, config.Receivers[0].ID)
	assert.Equal(t, receiver.DefaultBackoffConfig(), config.Receivers[0].backoff())

	assert.Equal(t, logconfig.DefaultOutputConfig(), config.OutputConfig())
}

func TestParseConfig_Errors(t *testing.T) {
	_, err := ParseConfig([]byte("agent: [unclosed"), "yaml")
	assert.True(t, errors.IsValidationError(err))

	_, err = ParseConfig([]byte("receivers:\n  - poll_interval: soon\n"), "yaml")
	assert.Error(t, err)

	_, err = ParseConfig([]byte("{}"), "json")
	assert.True(t, errors.IsValidationError(err))
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0o644))
	config, err := LoadConfigFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "edge-agent", config.Agent.Name)

	tomlPath := filepath.Join(dir, "agent.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("[agent]\nname = \"t\"\n"), 0o644))
	config, err = LoadConfigFromFile(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "t", config.Agent.Name)

	_, err = LoadConfigFromFile(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.IsIOError(err))
}

func TestResolveColumnizer(t *testing.T) {
	custom := columnizer.PlainColumnizer()
	custom.Name = "custom"
	layout := columnizer.DefaultColumnizer()
	layout.Name = "inline"

	config := &AgentConfig{Columnizers: []columnizer.Columnizer{custom}}

	tests := []struct {
		name     string
		receiver ReceiverConfig
		want     string
		wantErr  bool
	}{
		{"unset is plain", ReceiverConfig{}, "plain", false},
		{"named", ReceiverConfig{Columnizer: "custom"}, "custom", false},
		{"builtin default", ReceiverConfig{Columnizer: "default"}, "default", false},
		{"layout", ReceiverConfig{Layout: &layout}, "inline", false},
		{"unknown", ReceiverConfig{Columnizer: "nope"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, err := config.ResolveColumnizer(tt.receiver)
			if tt.wantErr {
				assert.True(t, errors.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, col.Name)
		})
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1m30s ")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("later")))
}

func TestGetConfigSummary(t *testing.T) {
	config, err := ParseConfig([]byte(sampleYAML), "yaml")
	require.NoError(t, err)

	summary := GetConfigSummary(config)
	assert.Equal(t, "edge-agent", summary.Name)
	assert.Equal(t, 3, summary.TotalReceivers)
	assert.Equal(t, 2, summary.EnabledReceivers)
	assert.Equal(t, "/var/log/app.log", summary.Receivers[0].Endpoint)
	assert.Equal(t, "app", summary.Receivers[0].Columnizer)
	assert.Equal(t, ":4505", summary.Receivers[1].Endpoint)
	assert.Equal(t, "plain", summary.Receivers[1].Columnizer)

	assert.Equal(t, "configuration is nil", GetConfigSummary(nil).Error)
}
