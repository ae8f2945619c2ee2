package agent

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
)

// ValidateConfig validates the entire configuration structure and reports
// every problem found
func ValidateConfig(config *AgentConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	collection := errors.NewErrorCollection()

	if err := validateAgentOptions(&config.Agent); err != nil {
		collection.Add(errors.NewValidationError("invalid agent configuration", err))
	}

	seenColumnizers := make(map[string]bool, len(config.Columnizers))
	for i, col := range config.Columnizers {
		if col.Name == "" {
			collection.Add(errors.NewValidationError(fmt.Sprintf("columnizer at index %d has no name", i), nil))
			continue
		}
		if seenColumnizers[col.Name] {
			collection.Add(errors.NewValidationError(fmt.Sprintf("duplicate columnizer name '%s'", col.Name), nil))
		}
		seenColumnizers[col.Name] = true

		if err := col.Validate(); err != nil {
			collection.Add(errors.NewValidationError(fmt.Sprintf("invalid columnizer '%s'", col.Name), err))
		}
	}

	seenIDs := make(map[string]int, len(config.Receivers))
	for i, r := range config.Receivers {
		if prevIndex, exists := seenIDs[r.ID]; exists {
			collection.Add(errors.NewValidationError(
				fmt.Sprintf("duplicate receiver ID '%s' found at indices %d and %d", r.ID, prevIndex, i), nil))
			continue
		}
		seenIDs[r.ID] = i

		if err := validateReceiverConfig(config, r); err != nil {
			collection.Add(errors.NewValidationError(
				fmt.Sprintf("invalid receiver at index %d", i), err,
			).WithContext("receiver_id", r.ID).WithContext("receiver_type", string(r.Type)))
		}
	}

	outputConfig := config.OutputConfig()
	if err := outputConfig.Validate(); err != nil {
		collection.Add(errors.NewValidationError("invalid output configuration", err))
	}

	return collection.ToError()
}

func validateAgentOptions(options *AgentOptions) error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if options.LogLevel != "" && !contains(validLogLevels, options.LogLevel) {
		return errors.NewValidationError(
			fmt.Sprintf("invalid log level: %s", options.LogLevel),
			nil,
		).WithContext("valid_levels", "debug, info, warn, error")
	}

	if options.LogFormat != "" && !contains([]string{"json", "console"}, options.LogFormat) {
		return errors.NewValidationError(fmt.Sprintf("invalid log format: %s", options.LogFormat), nil).
			WithContext("valid_formats", "json, console")
	}

	if options.ShutdownTimeout != 0 {
		if err := ValidateTimeout(options.ShutdownTimeout.Std(), "shutdown"); err != nil {
			return err
		}
	}

	return nil
}

func validateReceiverConfig(config *AgentConfig, r ReceiverConfig) error {
	if err := ValidateReceiverID(r.ID); err != nil {
		return err
	}

	if err := validateReceiverType(r.Type); err != nil {
		return err
	}

	switch r.Type {
	case ReceiverTypeFile:
		if r.Path == "" {
			return errors.NewValidationError("file receiver requires path", nil)
		}
	case ReceiverTypeDirectory:
		if r.Directory == "" {
			return errors.NewValidationError("directory receiver requires directory", nil)
		}
	case ReceiverTypeTcp, ReceiverTypeUdp, ReceiverTypeGrpc:
		if err := ValidateListenAddress(r.Address); err != nil {
			return err
		}
	case ReceiverTypeHttp:
		if r.URL == "" {
			return errors.NewValidationError("http receiver requires url", nil)
		}
	}

	for name, value := range map[string]Duration{
		"poll_interval":  r.PollInterval,
		"interval":       r.Interval,
		"timeout":        r.Timeout,
		"batch_interval": r.BatchInterval,
	} {
		if value < 0 {
			return errors.NewValidationError(fmt.Sprintf("%s cannot be negative", name), nil)
		}
	}

	if r.BatchSize < 0 {
		return errors.NewValidationError("batch_size cannot be negative", nil)
	}

	if r.Columnizer != "" && r.Layout != nil {
		return errors.NewValidationError("only one of columnizer and layout may be specified", nil)
	}
	col, err := config.ResolveColumnizer(r)
	if err != nil {
		return err
	}
	if r.Layout != nil {
		if err := col.Validate(); err != nil {
			return errors.NewValidationError("invalid layout", err)
		}
	}

	return nil
}

func validateReceiverType(receiverType ReceiverType) error {
	for _, validType := range receiverTypes {
		if receiverType == validType {
			return nil
		}
	}

	return errors.NewValidationError(
		fmt.Sprintf("unsupported receiver type: %s", receiverType),
		nil,
	).WithContext("supported_types", "file, directory, tcp, udp, http, grpc, journal, windebug")
}

// ValidateReceiverID validates receiver ID format and constraints
func ValidateReceiverID(id string) error {
	if id == "" {
		return errors.NewValidationError("receiver ID cannot be empty", nil)
	}

	if len(id) > 64 {
		return errors.NewValidationError("receiver ID cannot exceed 64 characters", nil)
	}

	for _, char := range id {
		if !isValidIDChar(char) {
			return errors.NewValidationError("receiver ID contains invalid characters: only letters, numbers, hyphens, dots and underscores are allowed", nil)
		}
	}

	return nil
}

// ValidatePort validates port number; 0 asks the OS for a free port
func ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return errors.NewValidationError("port must be between 0 and 65535", nil)
	}
	return nil
}

// ValidateListenAddress validates a "host:port" listen address. The host
// may be empty to listen on all interfaces.
func ValidateListenAddress(address string) error {
	if address == "" {
		return errors.NewValidationError("listen address cannot be empty", nil)
	}

	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return errors.NewValidationError("invalid network address format: "+address, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return errors.NewValidationError("invalid port in address: "+address, err)
	}

	if err := ValidatePort(port); err != nil {
		return errors.NewValidationError("invalid port in address: "+address, err)
	}

	return nil
}

// ValidateTimeout validates timeout duration
func ValidateTimeout(timeout time.Duration, name string) error {
	if timeout < 0 {
		return errors.NewValidationError(name+" timeout cannot be negative", nil)
	}

	if timeout == 0 {
		return errors.NewValidationError(name+" timeout cannot be zero", nil)
	}

	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func isValidIDChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '-' || char == '_' || char == '.'
}
