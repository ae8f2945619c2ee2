package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logcollection"
)

// Run loads configFile, hosts its receivers until SIGINT/SIGTERM or until
// runDuration seconds elapse (when positive), then stops.
func Run(runDuration int, configFile string, logger logcollection.StructuredLogger) error {
	logger.Infof("Agent runner starting...")

	ctx := context.Background()
	if runDuration > 0 {
		duration := time.Duration(runDuration) * time.Second
		logger.Infof("Using RUN DURATION of %v", duration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	logger.Infof("Using CONFIGURATION FILE: %s", configFile)

	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		return errors.NewIOError("failed to load configuration", err).WithContext("config_file", configFile)
	}

	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}

	if backend, ok := logger.(logcollection.LoggerBackend); ok {
		backend.SetLevel(logcollection.ParseLevel(config.Agent.LogLevel))
	}

	logger.Infof("Configuration loaded successfully from %s", configFile)
	logger.Infof("Agent: %s, Receivers: %d", config.Agent.Name, len(config.Receivers))

	agentLogger := logcollection.CreateLoggerForAgent(config.Agent.Name, logger)

	output := logcollection.NewOutputService(
		config.OutputConfig(),
		logcollection.CreateLoggerForComponent("output", logger),
	)

	agent, err := NewAgent(Options{
		Name:            config.Agent.Name,
		ShutdownTimeout: config.Agent.ShutdownTimeout.Std(),
	}, output, logcollection.NewLoggingAdapter(agentLogger, ""))
	if err != nil {
		return errors.NewInternalError("failed to create agent", err)
	}

	providers, err := CreateReceiversFromConfig(config, logger)
	if err != nil {
		return errors.NewValidationError("failed to create receivers from configuration", err)
	}

	logger.Infof("Created %d receivers", len(providers))

	for _, provider := range providers {
		if err := agent.AddReceiver(provider); err != nil {
			return errors.NewValidationError(
				fmt.Sprintf("failed to add receiver: %s", provider.ID()),
				err,
			).WithContext("receiver_id", provider.ID())
		}
	}

	logger.Infof("Enabling signal handling...")

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	if err := agent.Start(ctx); err != nil {
		return err
	}

	select {
	case receivedSignal := <-sig:
		logger.Infof("Agent runner received signal: %v", receivedSignal)
	case <-ctx.Done():
		logger.Infof("Agent runner timed out")
	}

	if err := agent.Stop(); err != nil {
		logger.Errorf("Agent stopped with errors: %v", err)
		return err
	}

	logger.Infof("Agent runner stopped")
	return nil
}

// ValidateConfigFile validates a configuration file without running it
func ValidateConfigFile(configFile string) error {
	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		return errors.NewIOError("failed to load configuration", err).WithContext("config_file", configFile)
	}

	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}

	return nil
}

// GetConfigSummary returns a human-readable summary of the configuration
func GetConfigSummary(config *AgentConfig) ConfigSummary {
	if config == nil {
		return ConfigSummary{Error: "configuration is nil"}
	}

	summary := ConfigSummary{
		Name:      config.Agent.Name,
		LogLevel:  config.Agent.LogLevel,
		Receivers: make([]ReceiverSummary, 0, len(config.Receivers)),
	}

	for _, r := range config.Receivers {
		receiverSummary := ReceiverSummary{
			ID:         r.ID,
			Type:       string(r.Type),
			Enabled:    r.IsEnabled(),
			Columnizer: r.Columnizer,
		}
		if r.Layout != nil {
			receiverSummary.Columnizer = r.Layout.Name
		}
		if receiverSummary.Columnizer == "" {
			receiverSummary.Columnizer = "plain"
		}

		switch r.Type {
		case ReceiverTypeFile:
			receiverSummary.Endpoint = r.Path
		case ReceiverTypeDirectory:
			receiverSummary.Endpoint = r.Directory
		case ReceiverTypeTcp, ReceiverTypeUdp, ReceiverTypeGrpc:
			receiverSummary.Endpoint = r.Address
		case ReceiverTypeHttp:
			receiverSummary.Endpoint = r.URL
		}

		summary.Receivers = append(summary.Receivers, receiverSummary)
		if receiverSummary.Enabled {
			summary.EnabledReceivers++
		}
	}

	summary.TotalReceivers = len(summary.Receivers)
	return summary
}

// ConfigSummary provides a high-level overview of configuration
type ConfigSummary struct {
	Name             string            `json:"name"`
	LogLevel         string            `json:"log_level"`
	TotalReceivers   int               `json:"total_receivers"`
	EnabledReceivers int               `json:"enabled_receivers"`
	Receivers        []ReceiverSummary `json:"receivers"`
	Error            string            `json:"error,omitempty"`
}

// ReceiverSummary provides a summary of receiver configuration
type ReceiverSummary struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Enabled    bool   `json:"enabled"`
	Endpoint   string `json:"endpoint,omitempty"`
	Columnizer string `json:"columnizer"`
}
