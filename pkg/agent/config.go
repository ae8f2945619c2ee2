package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-logreceiver/pkg/columnizer"
	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	logconfig "github.com/core-tools/hsu-logreceiver/pkg/logcollection/config"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

// AgentConfig represents the top-level configuration file structure
type AgentConfig struct {
	Agent       AgentOptions            `yaml:"agent" toml:"agent"`
	Columnizers []columnizer.Columnizer `yaml:"columnizers" toml:"columnizers"`
	Receivers   []ReceiverConfig        `yaml:"receivers" toml:"receivers"`
	Output      *OutputOptions          `yaml:"output,omitempty" toml:"output,omitempty"` // Optional, stdout when omitted
}

// AgentOptions represents agent-level configuration
type AgentOptions struct {
	Name            string   `yaml:"name" toml:"name"`
	LogLevel        string   `yaml:"log_level,omitempty" toml:"log_level,omitempty"`
	LogFormat       string   `yaml:"log_format,omitempty" toml:"log_format,omitempty"`
	LogOutput       string   `yaml:"log_output,omitempty" toml:"log_output,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout,omitempty" toml:"shutdown_timeout,omitempty"`
}

// OutputOptions configures the output service
type OutputOptions struct {
	Enabled       *bool                          `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	Targets       []logconfig.OutputTargetConfig `yaml:"targets" toml:"targets"`
	FlushInterval Duration                       `yaml:"flush_interval,omitempty" toml:"flush_interval,omitempty"`
	MaxErrors     int                            `yaml:"max_errors,omitempty" toml:"max_errors,omitempty"`
}

// ReceiverType selects the transport adapter of a receiver
type ReceiverType string

const (
	ReceiverTypeFile      ReceiverType = "file"
	ReceiverTypeDirectory ReceiverType = "directory"
	ReceiverTypeTcp       ReceiverType = "tcp"
	ReceiverTypeUdp       ReceiverType = "udp"
	ReceiverTypeHttp      ReceiverType = "http"
	ReceiverTypeGrpc      ReceiverType = "grpc"
	ReceiverTypeJournal   ReceiverType = "journal"
	ReceiverTypeWinDebug  ReceiverType = "windebug"
)

var receiverTypes = []ReceiverType{
	ReceiverTypeFile, ReceiverTypeDirectory, ReceiverTypeTcp, ReceiverTypeUdp,
	ReceiverTypeHttp, ReceiverTypeGrpc, ReceiverTypeJournal, ReceiverTypeWinDebug,
}

// ReceiverConfig represents a single receiver. Only the fields of its
// type are used.
type ReceiverConfig struct {
	ID       string       `yaml:"id" toml:"id"`
	Type     ReceiverType `yaml:"type" toml:"type"`
	Enabled  *bool        `yaml:"enabled,omitempty" toml:"enabled,omitempty"` // Pointer to distinguish unset from false
	Codepage string       `yaml:"codepage,omitempty" toml:"codepage,omitempty"`

	// file, directory
	Path               string   `yaml:"path,omitempty" toml:"path,omitempty"`
	Directory          string   `yaml:"directory,omitempty" toml:"directory,omitempty"`
	Pattern            string   `yaml:"pattern,omitempty" toml:"pattern,omitempty"`
	StartFromBeginning bool     `yaml:"start_from_beginning,omitempty" toml:"start_from_beginning,omitempty"`
	PollInterval       Duration `yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty"`

	// tcp, udp, grpc
	Address        string `yaml:"address,omitempty" toml:"address,omitempty"`
	MulticastGroup string `yaml:"multicast_group,omitempty" toml:"multicast_group,omitempty"`
	Interface      string `yaml:"interface,omitempty" toml:"interface,omitempty"`
	Format         string `yaml:"format,omitempty" toml:"format,omitempty"`

	// http
	URL      string   `yaml:"url,omitempty" toml:"url,omitempty"`
	Username string   `yaml:"username,omitempty" toml:"username,omitempty"`
	Password string   `yaml:"password,omitempty" toml:"password,omitempty"`
	Interval Duration `yaml:"interval,omitempty" toml:"interval,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty"`

	// journal
	Command string   `yaml:"command,omitempty" toml:"command,omitempty"`
	Filters []string `yaml:"filters,omitempty" toml:"filters,omitempty"`

	Backoff *BackoffOptions `yaml:"backoff,omitempty" toml:"backoff,omitempty"`

	// Columnizer names an entry of AgentConfig.Columnizers; Layout embeds
	// one. Without either every line is a plain message.
	Columnizer string                 `yaml:"columnizer,omitempty" toml:"columnizer,omitempty"`
	Layout     *columnizer.Columnizer `yaml:"layout,omitempty" toml:"layout,omitempty"`

	BatchSize     int      `yaml:"batch_size,omitempty" toml:"batch_size,omitempty"`
	BatchInterval Duration `yaml:"batch_interval,omitempty" toml:"batch_interval,omitempty"`
}

// BackoffOptions mirrors receiver.BackoffConfig with textual durations
type BackoffOptions struct {
	InitialDelay Duration `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay" toml:"max_delay"`
	BackoffRate  float64  `yaml:"backoff_rate" toml:"backoff_rate"`
}

// IsEnabled reports whether the receiver should be created
func (c ReceiverConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// backoff returns the configured backoff, or the default one
func (c ReceiverConfig) backoff() receiver.BackoffConfig {
	if c.Backoff == nil {
		return receiver.DefaultBackoffConfig()
	}
	return receiver.BackoffConfig{
		InitialDelay: c.Backoff.InitialDelay.Std(),
		MaxDelay:     c.Backoff.MaxDelay.Std(),
		BackoffRate:  c.Backoff.BackoffRate,
	}
}

// ===== DURATION =====

// Duration is a time.Duration written as "250ms", "5s" in both YAML and TOML
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// ===== LOADING =====

// LoadConfigFromFile loads agent configuration from a YAML or TOML file,
// chosen by extension
func LoadConfigFromFile(filename string) (*AgentConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	config, err := ParseConfig(data, formatFromExtension(filename))
	if err != nil {
		if domainErr, ok := errors.AsDomainError(err); ok {
			domainErr.WithContext("filename", filename)
		}
		return nil, err
	}
	return config, nil
}

// ParseConfig decodes data in the given format ("yaml" or "toml") and
// applies defaults
func ParseConfig(data []byte, format string) (*AgentConfig, error) {
	var config AgentConfig

	switch format {
	case "toml":
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, errors.NewValidationError("failed to parse TOML configuration", err)
		}
	case "yaml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, errors.NewValidationError("failed to parse YAML configuration", err)
		}
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported configuration format: %s", format), nil)
	}

	setConfigDefaults(&config)

	return &config, nil
}

func formatFromExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

// ===== DEFAULTS =====

const (
	DefaultAgentName       = "hsu-logreceiver"
	DefaultShutdownTimeout = 10 * time.Second
)

func setConfigDefaults(config *AgentConfig) {
	if config.Agent.Name == "" {
		config.Agent.Name = DefaultAgentName
	}
	if config.Agent.LogLevel == "" {
		config.Agent.LogLevel = "info"
	}
	if config.Agent.LogFormat == "" {
		config.Agent.LogFormat = "console"
	}
	if config.Agent.LogOutput == "" {
		config.Agent.LogOutput = "stdout"
	}
	if config.Agent.ShutdownTimeout == 0 {
		config.Agent.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}

	for i := range config.Receivers {
		r := &config.Receivers[i]

		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.Enabled == nil {
			enabled := true
			r.Enabled = &enabled
		}
		r.Type = ReceiverType(strings.ToLower(string(r.Type)))
	}
}

// OutputConfig converts the optional output section into the service configuration
func (c *AgentConfig) OutputConfig() logconfig.OutputConfig {
	cfg := logconfig.DefaultOutputConfig()
	if c.Output == nil {
		return cfg
	}

	cfg.Enabled = c.Output.Enabled == nil || *c.Output.Enabled
	if len(c.Output.Targets) > 0 {
		cfg.Targets = c.Output.Targets
	}
	if c.Output.FlushInterval > 0 {
		cfg.FlushInterval = c.Output.FlushInterval.Std()
	}
	if c.Output.MaxErrors > 0 {
		cfg.MaxErrors = c.Output.MaxErrors
	}
	return cfg
}

// ResolveColumnizer returns the columnizer a receiver uses
func (c *AgentConfig) ResolveColumnizer(r ReceiverConfig) (columnizer.Columnizer, error) {
	if r.Layout != nil {
		return *r.Layout, nil
	}
	if r.Columnizer == "" {
		return columnizer.PlainColumnizer(), nil
	}
	for _, col := range c.Columnizers {
		if col.Name == r.Columnizer {
			return col, nil
		}
	}
	switch r.Columnizer {
	case "plain":
		return columnizer.PlainColumnizer(), nil
	case "default":
		return columnizer.DefaultColumnizer(), nil
	}
	return columnizer.Columnizer{}, errors.NewValidationError(
		fmt.Sprintf("unknown columnizer '%s'", r.Columnizer), nil,
	).WithContext("receiver_id", r.ID)
}
