package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/core-tools/hsu-logreceiver/pkg/codepage"
	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

const DefaultPollInterval = 250 * time.Millisecond

// TailConfig configures a FileTail.
type TailConfig struct {
	Path               string        `yaml:"path" toml:"path"`
	StartFromBeginning bool          `yaml:"start_from_beginning" toml:"start_from_beginning"`
	PollInterval       time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	Codepage           string        `yaml:"codepage" toml:"codepage"`
}

// FileTail follows a single growing file.
type FileTail struct {
	config TailConfig
	logger logging.Logger

	cursor *cursor
}

func NewFileTail(config TailConfig, logger logging.Logger) *FileTail {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Codepage == "" {
		config.Codepage = codepage.Default
	}
	return &FileTail{
		config: config,
		logger: logging.WithPrefix(logger, "file: "),
	}
}

func (t *FileTail) DisplayInfo() string {
	return fmt.Sprintf("File: %s", t.config.Path)
}

func (t *FileTail) Validate() error {
	if t.config.Path == "" {
		return errors.NewValidationError("file path is required", nil)
	}
	if _, err := codepage.Lookup(t.config.Codepage); err != nil {
		return err
	}
	dir := filepath.Dir(t.config.Path)
	info, err := os.Stat(dir)
	if err != nil {
		return errors.NewValidationError("parent directory does not exist", err).WithContext("path", t.config.Path)
	}
	if !info.IsDir() {
		return errors.NewValidationError("parent path is not a directory", nil).WithContext("path", t.config.Path)
	}
	if info, err := os.Stat(t.config.Path); err == nil && info.IsDir() {
		return errors.NewValidationError("path is a directory", nil).WithContext("path", t.config.Path)
	}
	return nil
}

// Prepare records the starting offset. Content already in the file is
// skipped unless StartFromBeginning is set.
func (t *FileTail) Prepare() error {
	var offset int64
	if !t.config.StartFromBeginning {
		offset = endOffset(t.config.Path)
	}
	c, err := newCursor(t.config.Path, "", t.config.Codepage, offset)
	if err != nil {
		return err
	}
	t.cursor = c
	t.logger.Debugf("Prepared %s at offset %d", t.config.Path, offset)
	return nil
}

func (t *FileTail) Run(ctx context.Context, p *receiver.Pipeline) error {
	if t.cursor == nil {
		if err := t.Prepare(); err != nil {
			return err
		}
	}
	defer t.cursor.close()

	events, closeWatcher := t.watch()
	defer closeWatcher()

	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	missing := false
	for {
		if err := p.WaitActive(ctx); err != nil {
			return nil
		}

		err := t.cursor.poll(p)
		switch {
		case err == nil:
			if missing {
				t.logger.Infof("File %s is available again", t.config.Path)
			}
			missing = false
		case isMissing(err):
			// Reported once until the file shows up again.
			if !missing {
				missing = true
				p.Error(err)
			}
		default:
			p.Error(err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-events:
		}
	}
}

// watch subscribes to the parent directory. Events only shorten the wait
// between polls, so a failing watcher degrades to plain polling.
func (t *FileTail) watch() (<-chan struct{}, func()) {
	wakeups := make(chan struct{}, 1)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Warnf("Watcher unavailable, polling only: %v", err)
		return wakeups, func() {}
	}
	if err := watcher.Add(filepath.Dir(t.config.Path)); err != nil {
		t.logger.Warnf("Cannot watch %s, polling only: %v", filepath.Dir(t.config.Path), err)
		watcher.Close()
		return wakeups, func() {}
	}

	target := filepath.Clean(t.config.Path)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) == target {
					notify(wakeups)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				t.logger.Warnf("Watcher error: %v", err)
			}
		}
	}()

	return wakeups, func() {
		close(done)
		watcher.Close()
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
