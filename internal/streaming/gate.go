package streaming

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// readyGate tracks whether a compressed playback pipeline accepts another write. A short
// write closes it and OnReadyForWrite opens it again.
type readyGate struct {
	mu      sync.Mutex
	open    bool
	changed chan struct{}
}

func newReadyGate() *readyGate {
	return &readyGate{open: true, changed: make(chan struct{})}
}

func (g *readyGate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = false
}

func (g *readyGate) signal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
	close(g.changed)
	g.changed = make(chan struct{})
}

func (g *readyGate) isOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// wait blocks until the gate is open. A zero timeout waits for ctx only.
func (g *readyGate) wait(ctx context.Context, timeout time.Duration) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		g.mu.Lock()
		if g.open {
			g.mu.Unlock()
			return nil
		}
		changed := g.changed
		g.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			if g.isOpen() {
				return nil
			}
			return fmt.Errorf("%w after %v", ErrNotReady, timeout)
		}
	}
}
