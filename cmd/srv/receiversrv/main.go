package main

import (
	"encoding/json"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/hsu-logreceiver/pkg/agent"
	"github.com/core-tools/hsu-logreceiver/pkg/logcollection"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"path to the agent configuration file (.yaml or .toml)"`
	RunDuration int    `long:"run-duration" description:"Duration in seconds to run the agent (debug feature)"`
	Validate    bool   `long:"validate" description:"validate the configuration, print its summary and exit"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	if opts.Config == "" {
		fmt.Println("Configuration file is required")
		os.Exit(1)
	}

	if opts.Validate {
		os.Exit(validate(opts.Config))
	}

	config, err := agent.LoadConfigFromFile(opts.Config)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logcollection.DefaultLoggerConfig()
	loggerConfig.Level = logcollection.ParseLevel(config.Agent.LogLevel)
	loggerConfig.Format = config.Agent.LogFormat
	loggerConfig.Output = config.Agent.LogOutput
	loggerConfig.Stacktrace = false

	logger, err := logcollection.NewStructuredLoggerWithConfig(loggerConfig)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer syncLogger(logger)

	logger.Infof("opts: %+v", opts)

	if err := agent.Run(opts.RunDuration, opts.Config, logger); err != nil {
		logger.Errorf("Agent failed: %v", err)
		syncLogger(logger)
		os.Exit(1)
	}
}

func validate(configFile string) int {
	if err := agent.ValidateConfigFile(configFile); err != nil {
		fmt.Printf("Configuration is invalid: %v\n", err)
		return 1
	}

	config, err := agent.LoadConfigFromFile(configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		return 1
	}

	summary, err := json.MarshalIndent(agent.GetConfigSummary(config), "", "  ")
	if err != nil {
		fmt.Printf("Failed to render summary: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration is valid:\n%s\n", summary)
	return 0
}

func syncLogger(logger logcollection.StructuredLogger) {
	if backend, ok := logger.(logcollection.LoggerBackend); ok {
		_ = backend.Sync()
	}
}
