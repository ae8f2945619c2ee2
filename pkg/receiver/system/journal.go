package system

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

const DefaultJournalCommand = "journalctl"

// JournalConfig configures a Journal source. Filters are passed to
// journalctl verbatim, e.g. "-u", "nginx.service".
type JournalConfig struct {
	Command string                 `yaml:"command" toml:"command"`
	Filters []string               `yaml:"filters" toml:"filters"`
	Backoff receiver.BackoffConfig `yaml:"backoff" toml:"backoff"`
}

// Journal follows the systemd journal through journalctl.
type Journal struct {
	config JournalConfig
	logger logging.Logger
	path   string
}

func NewJournal(config JournalConfig, logger logging.Logger) *Journal {
	if config.Command == "" {
		config.Command = DefaultJournalCommand
	}
	if config.Backoff == (receiver.BackoffConfig{}) {
		config.Backoff = receiver.DefaultBackoffConfig()
	}
	return &Journal{
		config: config,
		logger: logging.WithPrefix(logger, "journal: "),
	}
}

func (j *Journal) DisplayInfo() string {
	if len(j.config.Filters) == 0 {
		return "Journal"
	}
	return fmt.Sprintf("Journal: %s", strings.Join(j.config.Filters, " "))
}

func (j *Journal) Validate() error {
	path, err := exec.LookPath(j.config.Command)
	if err != nil {
		return errors.NewValidationError("journal reader not available", err).WithContext("command", j.config.Command)
	}
	j.path = path
	if err := receiver.ValidateBackoffConfig(j.config.Backoff); err != nil {
		return errors.NewValidationError("invalid backoff", err)
	}
	return nil
}

func (j *Journal) Prepare() error {
	return nil
}

func (j *Journal) args() []string {
	args := []string{"-o", "json", "-f", "--no-pager"}
	return append(args, j.config.Filters...)
}

// Run keeps a journalctl process running and restarts it with backoff
// whenever it exits.
func (j *Journal) Run(ctx context.Context, p *receiver.Pipeline) error {
	if j.path == "" {
		if err := j.Validate(); err != nil {
			return err
		}
	}

	backoff := receiver.NewBackoff(j.config.Backoff)
	for {
		started := time.Now()
		err := j.follow(ctx, p)
		if ctx.Err() != nil {
			return nil
		}
		p.Error(err)

		// A reader that ran for a while starts over with short delays.
		if time.Since(started) > j.config.Backoff.MaxDelay {
			backoff.Reset()
		}
		if backoff.Wait(ctx) != nil {
			return nil
		}
	}
}

// follow runs one journalctl process to completion.
func (j *Journal) follow(ctx context.Context, p *receiver.Pipeline) error {
	readerCtx, stop := context.WithCancel(ctx)
	defer stop()

	cmd := exec.CommandContext(readerCtx, j.path, j.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.NewIOError("cannot create journal pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return errors.NewIOError("cannot start journal reader", err).WithContext("command", j.path)
	}
	j.logger.Infof("Started %s, pid: %d", j.path, cmd.Process.Pid)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), receiver.MaxLineLength)
	eof := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, err := parseJournalEntry(line, time.Now())
		if err != nil {
			logErr := logmessage.NewLogError("", err)
			logErr.Detail = line
			if !p.ReportError(logErr) {
				eof = false
				break
			}
			continue
		}
		if !p.Message(msg) {
			eof = false
			break
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil || !eof {
		// A following reader never exits on its own.
		stop()
	}

	waitErr := cmd.Wait()
	if scanErr != nil {
		return errors.NewIOError("journal read failed", scanErr)
	}
	if waitErr != nil {
		return errors.NewIOError("journal reader exited", waitErr).WithContext("command", j.path)
	}
	return errors.NewIOError("journal reader exited", nil).WithContext("command", j.path)
}
