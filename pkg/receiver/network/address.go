package network

import (
	"net"
	"sync"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
)

func validateAddress(address string) error {
	if address == "" {
		return errors.NewValidationError("listen address is required", nil)
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		return errors.NewValidationError("invalid listen address", err).WithContext("address", address)
	}
	return nil
}

// boundAddr publishes the address a listener actually bound to.
type boundAddr struct {
	mu   sync.RWMutex
	addr net.Addr
}

func (b *boundAddr) set(addr net.Addr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addr = addr
}

func (b *boundAddr) get() net.Addr {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.addr
}
