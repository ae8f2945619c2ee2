package file

import (
	"io"
	"os"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

const readChunkSize = 64 * 1024

// cursor tails one file. It keeps the handle open between polls so that
// the rest of a rotated file can still be read after it was renamed.
type cursor struct {
	path     string
	logger   string
	codepage string

	file    *os.File
	info    os.FileInfo
	offset  int64
	decoder *receiver.LineDecoder
	buf     []byte
}

func newCursor(path, logger, codepageName string, offset int64) (*cursor, error) {
	decoder, err := receiver.NewLineDecoder(codepageName)
	if err != nil {
		return nil, err
	}
	return &cursor{
		path:     path,
		logger:   logger,
		codepage: codepageName,
		offset:   offset,
		decoder:  decoder,
		buf:      make([]byte, readChunkSize),
	}, nil
}

// poll forwards every complete line appended since the last poll. It
// returns an error wrapping os.ErrNotExist when the file is gone.
func (c *cursor) poll(p *receiver.Pipeline) error {
	current, statErr := os.Stat(c.path)

	if c.file != nil && (statErr != nil || !os.SameFile(c.info, current)) {
		// Rotated or deleted: finish the old file, then start over.
		if err := c.drain(p); err != nil {
			return err
		}
		c.close()
		c.offset = 0
		c.decoder.Reset()
	}

	if statErr != nil {
		if os.IsNotExist(statErr) {
			return errors.NewIOError("file not found", statErr).WithContext("path", c.path)
		}
		return errors.NewIOError("cannot stat file", statErr).WithContext("path", c.path)
	}

	if c.file == nil {
		f, err := os.Open(c.path)
		if err != nil {
			return errors.NewIOError("cannot open file", err).WithContext("path", c.path)
		}
		c.file = f
		c.info = current
		if current.Size() < c.offset {
			c.offset = 0
		}
	}

	return c.drain(p)
}

// drain reads from offset to the current end of the open file.
func (c *cursor) drain(p *receiver.Pipeline) error {
	if c.file == nil {
		return nil
	}
	info, err := c.file.Stat()
	if err != nil {
		return errors.NewIOError("cannot stat open file", err).WithContext("path", c.path)
	}
	if info.Size() < c.offset {
		// Truncated in place.
		c.offset = 0
		c.decoder.Reset()
	}

	for c.offset < info.Size() {
		n, err := c.file.ReadAt(c.buf, c.offset)
		if n > 0 {
			c.offset += int64(n)
			for _, line := range c.decoder.Feed(c.buf[:n]) {
				if !p.LineWithLogger(c.path, line, c.logger) {
					return nil
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.NewIOError("read failed", err).WithContext("path", c.path).WithContext("offset", c.offset)
		}
	}
	return nil
}

func (c *cursor) close() {
	if c.file != nil {
		_ = c.file.Close()
		c.file = nil
		c.info = nil
	}
}

// endOffset returns the size of path, or 0 when it does not exist yet.
func endOffset(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// isMissing reports whether err came from a file that does not exist.
func isMissing(err error) bool {
	if domainErr, ok := errors.AsDomainError(err); ok {
		return os.IsNotExist(domainErr.Cause)
	}
	return false
}
