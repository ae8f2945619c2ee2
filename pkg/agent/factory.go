package agent

import (
	"fmt"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logcollection"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver/file"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver/network"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver/system"
)

// CreateReceiversFromConfig creates receiver instances from configuration.
// Disabled receivers are skipped. Each receiver logs through logger with
// its id and type attached.
func CreateReceiversFromConfig(config *AgentConfig, logger logcollection.StructuredLogger) ([]receiver.Provider, error) {
	if config == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}

	var providers []receiver.Provider

	for i, receiverConfig := range config.Receivers {
		if !receiverConfig.IsEnabled() {
			logger.Infof("Skipping disabled receiver, id: %s", receiverConfig.ID)
			continue
		}

		provider, err := createReceiverFromConfig(config, receiverConfig, logger)
		if err != nil {
			return nil, errors.NewValidationError(
				fmt.Sprintf("failed to create receiver at index %d", i),
				err,
			).WithContext("receiver_id", receiverConfig.ID).WithContext("receiver_index", fmt.Sprintf("%d", i))
		}

		providers = append(providers, provider)
	}

	return providers, nil
}

// createReceiverFromConfig creates a single receiver from its configuration
func createReceiverFromConfig(config *AgentConfig, r ReceiverConfig, logger logcollection.StructuredLogger) (receiver.Provider, error) {
	col, err := config.ResolveColumnizer(r)
	if err != nil {
		return nil, err
	}

	receiverLogger := logcollection.NewLoggingAdapter(
		logcollection.CreateLoggerForReceiver(r.ID, string(r.Type), logger),
		fmt.Sprintf("receiver: %s , ", r.ID),
	)

	source, err := createSource(r, receiverLogger)
	if err != nil {
		return nil, err
	}

	return receiver.New(source, receiver.Options{
		ID:            r.ID,
		Columnizer:    col,
		BatchSize:     r.BatchSize,
		BatchInterval: r.BatchInterval.Std(),
		Logger:        receiverLogger,
	}), nil
}

func createSource(r ReceiverConfig, logger logging.Logger) (receiver.Source, error) {
	switch r.Type {
	case ReceiverTypeFile:
		return file.NewFileTail(file.TailConfig{
			Path:               r.Path,
			StartFromBeginning: r.StartFromBeginning,
			PollInterval:       r.PollInterval.Std(),
			Codepage:           r.Codepage,
		}, logger), nil

	case ReceiverTypeDirectory:
		return file.NewDirectoryTail(file.DirectoryConfig{
			Directory:          r.Directory,
			Pattern:            r.Pattern,
			StartFromBeginning: r.StartFromBeginning,
			PollInterval:       r.PollInterval.Std(),
			Codepage:           r.Codepage,
		}, logger), nil

	case ReceiverTypeTcp:
		return network.NewTcpListener(network.TcpConfig{
			Address:  r.Address,
			Codepage: r.Codepage,
			Backoff:  r.backoff(),
		}, logger), nil

	case ReceiverTypeUdp:
		return network.NewUdpListener(network.UdpConfig{
			Address:        r.Address,
			MulticastGroup: r.MulticastGroup,
			Interface:      r.Interface,
			Codepage:       r.Codepage,
			Format:         r.Format,
		}, logger), nil

	case ReceiverTypeHttp:
		return network.NewHttpPoll(network.HttpConfig{
			URL:                r.URL,
			Username:           r.Username,
			Password:           r.Password,
			Interval:           r.Interval.Std(),
			Timeout:            r.Timeout.Std(),
			StartFromBeginning: r.StartFromBeginning,
			Codepage:           r.Codepage,
			Backoff:            r.backoff(),
		}, logger), nil

	case ReceiverTypeGrpc:
		return network.NewGrpcListener(network.GrpcConfig{
			Address:  r.Address,
			Codepage: r.Codepage,
		}, logger), nil

	case ReceiverTypeJournal:
		return system.NewJournal(system.JournalConfig{
			Command: r.Command,
			Filters: r.Filters,
			Backoff: r.backoff(),
		}, logger), nil

	case ReceiverTypeWinDebug:
		return system.NewWinDebug(system.WinDebugConfig{
			Codepage: r.Codepage,
		}, logger), nil

	default:
		return nil, errors.NewValidationError(
			fmt.Sprintf("unsupported receiver type: %s", r.Type),
			nil,
		).WithContext("supported_types", "file, directory, tcp, udp, http, grpc, journal, windebug")
	}
}
