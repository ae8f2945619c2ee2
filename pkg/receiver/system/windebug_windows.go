//go:build windows

package system

import (
	"bytes"
	"context"
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/core-tools/hsu-logreceiver/pkg/codepage"
	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

const (
	dbwinBufferSize = 4096
	// Wait slice between cancellation checks, in milliseconds.
	dbwinWaitSlice = 200
)

func validatePlatform() error {
	return nil
}

// Run implements the DBWIN protocol: writers wait for DBWIN_BUFFER_READY,
// fill the shared DBWIN_BUFFER (pid followed by a NUL terminated string)
// and signal DBWIN_DATA_READY.
func (w *WinDebug) Run(ctx context.Context, p *receiver.Pipeline) error {
	bufferReady, err := namedEvent("DBWIN_BUFFER_READY")
	if err != nil {
		return err
	}
	defer windows.CloseHandle(bufferReady)

	dataReady, err := namedEvent("DBWIN_DATA_READY")
	if err != nil {
		return err
	}
	defer windows.CloseHandle(dataReady)

	name, _ := windows.UTF16PtrFromString("DBWIN_BUFFER")
	mapping, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, dbwinBufferSize, name)
	if err != nil {
		if mapping != 0 {
			windows.CloseHandle(mapping)
		}
		return errors.NewFatalResourceError("cannot create DBWIN_BUFFER, another debug monitor may be running", err)
	}
	defer windows.CloseHandle(mapping)

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ, 0, 0, dbwinBufferSize)
	if err != nil {
		return errors.NewFatalResourceError("cannot map DBWIN_BUFFER", err)
	}
	defer windows.UnmapViewOfFile(addr)

	decoder, err := codepage.NewDecoder(w.config.Codepage)
	if err != nil {
		return err
	}

	buffer := unsafe.Slice((*byte)(unsafe.Pointer(addr)), dbwinBufferSize)
	if err := windows.SetEvent(bufferReady); err != nil {
		return errors.NewFatalResourceError("cannot signal DBWIN_BUFFER_READY", err)
	}
	w.logger.Infof("Capturing debug output")

	for {
		event, err := windows.WaitForSingleObject(dataReady, dbwinWaitSlice)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return errors.NewFatalResourceError("wait for DBWIN_DATA_READY failed", err)
		}
		if event != windows.WAIT_OBJECT_0 {
			continue
		}

		pid := binary.LittleEndian.Uint32(buffer[:4])
		text := buffer[4:]
		if i := bytes.IndexByte(text, 0); i >= 0 {
			text = text[:i]
		}
		raw := append([]byte(nil), text...)

		// Release the buffer before parsing so writers are not blocked.
		_ = windows.SetEvent(bufferReady)

		decoder.Reset()
		if !w.emit(p, decoder, pid, raw) {
			return nil
		}
	}
}

func namedEvent(name string) (windows.Handle, error) {
	ptr, _ := windows.UTF16PtrFromString(name)
	handle, err := windows.CreateEvent(nil, 0, 0, ptr)
	if err != nil && err != windows.ERROR_ALREADY_EXISTS {
		return 0, errors.NewFatalResourceError("cannot create "+name, err)
	}
	return handle, nil
}
