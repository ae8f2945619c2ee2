//go:build !windows

package system

import (
	"context"
	"runtime"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

func validatePlatform() error {
	return errors.NewValidationError("windows debug output is not available on "+runtime.GOOS, nil)
}

func (w *WinDebug) Run(ctx context.Context, p *receiver.Pipeline) error {
	return validatePlatform()
}
