package config

import (
	"fmt"
	"time"
)

// ===== MAIN CONFIGURATION =====

// OutputConfig defines where received messages are written
type OutputConfig struct {
	Enabled       bool                 `yaml:"enabled" toml:"enabled"`
	Targets       []OutputTargetConfig `yaml:"targets" toml:"targets"`
	FlushInterval time.Duration        `yaml:"flush_interval" toml:"flush_interval"`
	// MaxErrors bounds the error history kept per receiver for status reporting.
	MaxErrors int `yaml:"max_errors" toml:"max_errors"`
}

// ===== OUTPUT TARGETS =====

// OutputTargetConfig defines a specific output destination
type OutputTargetConfig struct {
	Type     string         `yaml:"type" toml:"type"`                     // "stdout", "stderr", "file"
	Path     string         `yaml:"path,omitempty" toml:"path,omitempty"` // For file targets
	Format   string         `yaml:"format" toml:"format"`                 // "plain", "raw"
	MinLevel string         `yaml:"min_level,omitempty" toml:"min_level,omitempty"`
	Rotation RotationConfig `yaml:"rotation,omitempty" toml:"rotation,omitempty"`
}

// RotationConfig defines log rotation settings for file targets
type RotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool `yaml:"compress" toml:"compress"`
}

const (
	TargetStdout = "stdout"
	TargetStderr = "stderr"
	TargetFile   = "file"

	FormatPlain = "plain"
	FormatRaw   = "raw"
)

// ===== VALIDATION =====

// Validate checks if the configuration is valid
func (c *OutputConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if len(c.Targets) == 0 {
		return fmt.Errorf("output enabled but no targets configured")
	}

	for i, target := range c.Targets {
		if err := target.Validate(); err != nil {
			return fmt.Errorf("output target %d: %w", i, err)
		}
	}

	if c.FlushInterval < 0 {
		return fmt.Errorf("flush_interval cannot be negative")
	}
	if c.MaxErrors < 0 {
		return fmt.Errorf("max_errors cannot be negative")
	}

	return nil
}

// Validate checks if the output target configuration is valid
func (o *OutputTargetConfig) Validate() error {
	if o.Type == "" {
		return fmt.Errorf("output target type cannot be empty")
	}

	validTypes := map[string]bool{
		TargetStdout: true, TargetStderr: true, TargetFile: true,
	}
	if !validTypes[o.Type] {
		return fmt.Errorf("invalid output target type: %s", o.Type)
	}

	switch o.Format {
	case "", FormatPlain, FormatRaw:
	default:
		return fmt.Errorf("invalid output format: %s", o.Format)
	}

	if o.Type == TargetFile && o.Path == "" {
		return fmt.Errorf("file output target must have path specified")
	}

	if o.Rotation.MaxSizeMB < 0 || o.Rotation.MaxBackups < 0 || o.Rotation.MaxAgeDays < 0 {
		return fmt.Errorf("rotation settings cannot be negative")
	}

	return nil
}

// ===== DEFAULT CONFIGURATIONS =====

// DefaultOutputConfig writes every message to stdout
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		Enabled: true,
		Targets: []OutputTargetConfig{
			{
				Type:   TargetStdout,
				Format: FormatPlain,
			},
		},
		FlushInterval: time.Second,
		MaxErrors:     10,
	}
}

// DefaultFileTarget returns a rotated plain-text file target
func DefaultFileTarget(path string) OutputTargetConfig {
	return OutputTargetConfig{
		Type:   TargetFile,
		Path:   path,
		Format: FormatPlain,
		Rotation: RotationConfig{
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 7,
		},
	}
}
