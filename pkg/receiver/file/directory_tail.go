package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/core-tools/hsu-logreceiver/pkg/codepage"
	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

const DefaultPattern = "*.log"

// DirectoryConfig configures a DirectoryTail.
type DirectoryConfig struct {
	Directory          string        `yaml:"directory" toml:"directory"`
	Pattern            string        `yaml:"pattern" toml:"pattern"`
	StartFromBeginning bool          `yaml:"start_from_beginning" toml:"start_from_beginning"`
	PollInterval       time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	Codepage           string        `yaml:"codepage" toml:"codepage"`
}

// DirectoryTail follows every file in a directory whose relative path
// matches a glob. Patterns may use ** to descend into subdirectories.
type DirectoryTail struct {
	config DirectoryConfig
	logger logging.Logger

	cursors map[string]*cursor
}

func NewDirectoryTail(config DirectoryConfig, logger logging.Logger) *DirectoryTail {
	if config.Pattern == "" {
		config.Pattern = DefaultPattern
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Codepage == "" {
		config.Codepage = codepage.Default
	}
	return &DirectoryTail{
		config:  config,
		logger:  logging.WithPrefix(logger, "directory: "),
		cursors: make(map[string]*cursor),
	}
}

func (d *DirectoryTail) DisplayInfo() string {
	return fmt.Sprintf("Directory: %s (%s)", d.config.Directory, d.config.Pattern)
}

func (d *DirectoryTail) Validate() error {
	if d.config.Directory == "" {
		return errors.NewValidationError("directory is required", nil)
	}
	if !doublestar.ValidatePattern(d.config.Pattern) {
		return errors.NewValidationError("invalid file pattern", nil).WithContext("pattern", d.config.Pattern)
	}
	if _, err := codepage.Lookup(d.config.Codepage); err != nil {
		return err
	}
	info, err := os.Stat(d.config.Directory)
	if err != nil {
		return errors.NewValidationError("directory does not exist", err).WithContext("directory", d.config.Directory)
	}
	if !info.IsDir() {
		return errors.NewValidationError("path is not a directory", nil).WithContext("directory", d.config.Directory)
	}
	return nil
}

// Prepare registers the files that exist now. Their current content is
// skipped unless StartFromBeginning is set; files created later are read
// from the start.
func (d *DirectoryTail) Prepare() error {
	matches, err := d.scan()
	if err != nil {
		return errors.NewValidationError("cannot list directory", err).WithContext("directory", d.config.Directory)
	}
	for _, path := range matches {
		var offset int64
		if !d.config.StartFromBeginning {
			offset = endOffset(path)
		}
		if err := d.track(path, offset); err != nil {
			return err
		}
	}
	d.logger.Debugf("Prepared %s with %d files", d.config.Directory, len(d.cursors))
	return nil
}

func (d *DirectoryTail) Run(ctx context.Context, p *receiver.Pipeline) error {
	defer d.closeAll()

	events, closeWatcher := d.watch()
	defer closeWatcher()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := p.WaitActive(ctx); err != nil {
			return nil
		}

		if _, err := os.Stat(d.config.Directory); os.IsNotExist(err) {
			return errors.NewFatalResourceError("watched directory was removed", err).
				WithContext("directory", d.config.Directory)
		}

		if err := d.refresh(); err != nil {
			p.Error(errors.NewIOError("cannot list directory", err).WithContext("directory", d.config.Directory))
		}

		for _, path := range d.paths() {
			c := d.cursors[path]
			err := c.poll(p)
			if err == nil {
				continue
			}
			if isMissing(err) {
				// Deleted files are forgotten silently.
				c.close()
				delete(d.cursors, path)
				d.logger.Debugf("Stopped tracking %s", path)
				continue
			}
			p.Error(err)
		}

		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-events:
		}
	}
}

// refresh starts cursors for files that appeared since the last scan.
func (d *DirectoryTail) refresh() error {
	matches, err := d.scan()
	if err != nil {
		return err
	}
	for _, path := range matches {
		if _, ok := d.cursors[path]; ok {
			continue
		}
		if err := d.track(path, 0); err != nil {
			return err
		}
		d.logger.Debugf("Tracking new file %s", path)
	}
	return nil
}

func (d *DirectoryTail) scan() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(d.config.Directory), d.config.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, filepath.Join(d.config.Directory, filepath.FromSlash(m)))
	}
	return paths, nil
}

func (d *DirectoryTail) track(path string, offset int64) error {
	c, err := newCursor(path, loggerName(path), d.config.Codepage, offset)
	if err != nil {
		return err
	}
	d.cursors[path] = c
	return nil
}

// paths returns tracked files in a stable order.
func (d *DirectoryTail) paths() []string {
	paths := make([]string, 0, len(d.cursors))
	for path := range d.cursors {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (d *DirectoryTail) closeAll() {
	for _, c := range d.cursors {
		c.close()
	}
}

// watch subscribes to the directory tree. Subdirectories created later
// are picked up by polling only.
func (d *DirectoryTail) watch() (<-chan struct{}, func()) {
	wakeups := make(chan struct{}, 1)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warnf("Watcher unavailable, polling only: %v", err)
		return wakeups, func() {}
	}

	dirs := []string{d.config.Directory}
	if strings.Contains(d.config.Pattern, "**") {
		_ = filepath.WalkDir(d.config.Directory, func(path string, entry fs.DirEntry, err error) error {
			if err == nil && entry.IsDir() && path != d.config.Directory {
				dirs = append(dirs, path)
			}
			return nil
		})
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			d.logger.Warnf("Cannot watch %s: %v", dir, err)
		}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				notify(wakeups)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Warnf("Watcher error: %v", err)
			}
		}
	}()

	return wakeups, func() {
		close(done)
		watcher.Close()
	}
}

// loggerName is the file name without its extension.
func loggerName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
