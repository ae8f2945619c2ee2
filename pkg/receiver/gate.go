package receiver

import (
	"context"
	"sync"
)

// gate blocks acquisition loops while a receiver is paused.
type gate struct {
	mu      sync.Mutex
	paused  bool
	resumed chan struct{}
}

func newGate() *gate {
	return &gate{resumed: make(chan struct{})}
}

func (g *gate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.resumed = make(chan struct{})
	}
}

func (g *gate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.resumed)
	}
}

func (g *gate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// wait returns once the gate is open or ctx is done.
func (g *gate) wait(ctx context.Context) error {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return ctx.Err()
	}
	resumed := g.resumed
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-resumed:
		return nil
	}
}
