// Package bufpool provides a fixed-capacity pool of reusable items for bounding the
// number of outstanding asynchronous I/O requests.
//
// A Pool starts full. A producer takes an item with Get before issuing a request and the
// request's completion hands it back with Put, possibly from another goroutine. Because
// the pool never grows, at most Cap() items are outstanding at any time, and WaitFull
// tells the producer when every request it issued has completed.
//
//	pool, _ := bufpool.New(buffers)
//	for {
//	    buf, err := pool.Get(ctx, 10*time.Second)
//	    if err != nil {
//	        break
//	    }
//	    stream.Write(buf, func(...) { pool.Put(buf) })
//	}
//	_ = pool.WaitFull(context.Background(), 0)
package bufpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by Get and WaitFull when the deadline passes first.
	ErrTimeout = errors.New("pool wait timed out")
	// ErrOverflow is returned by Put when the pool already holds every item.
	ErrOverflow = errors.New("pool overflow: item returned twice")
	// ErrEmptyPool is returned by New when no items are given.
	ErrEmptyPool = errors.New("pool needs at least one item")
)

// Stats is a snapshot of pool counters.
type Stats struct {
	Acquired  uint64 // successful Get/TryGet calls
	Released  uint64 // successful Put calls
	Timeouts  uint64 // Get calls that hit their deadline
	HighWater int    // largest number of items outstanding at once
}

// Pool is a FIFO ring of items. It is safe for concurrent use.
type Pool[T any] struct {
	mu      sync.Mutex
	ring    []T
	head    int // index of the oldest item
	count   int // items currently in the pool
	err     error
	changed chan struct{} // closed and replaced on every state change
	stats   Stats
}

// New creates a pool holding exactly the given items; its capacity is len(items).
func New[T any](items []T) (*Pool[T], error) {
	if len(items) == 0 {
		return nil, ErrEmptyPool
	}
	ring := make([]T, len(items))
	copy(ring, items)
	return &Pool[T]{
		ring:    ring,
		count:   len(ring),
		changed: make(chan struct{}),
	}, nil
}

// Cap returns the fixed number of items managed by the pool.
func (p *Pool[T]) Cap() int {
	return len(p.ring)
}

// Len returns the number of items currently available.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Outstanding returns the number of items taken and not yet returned.
func (p *Pool[T]) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ring) - p.count
}

// Err returns the error recorded by Abort, if any.
func (p *Pool[T]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// TryGet takes the oldest item without blocking. It fails when the pool is empty or
// aborted.
func (p *Pool[T]) TryGet() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil || p.count == 0 {
		var zero T
		return zero, false
	}
	return p.popLocked(), true
}

// Get takes the oldest item, waiting until one is returned, the pool is aborted, ctx is
// done or timeout elapses. A zero timeout waits without a deadline.
func (p *Pool[T]) Get(ctx context.Context, timeout time.Duration) (T, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		p.mu.Lock()
		if p.err != nil {
			err := p.err
			p.mu.Unlock()
			var zero T
			return zero, err
		}
		if p.count > 0 {
			item := p.popLocked()
			p.mu.Unlock()
			return item, nil
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-deadline:
			p.mu.Lock()
			// An item returned together with the deadline still counts.
			if p.err == nil && p.count > 0 {
				item := p.popLocked()
				p.mu.Unlock()
				return item, nil
			}
			p.stats.Timeouts++
			p.mu.Unlock()
			var zero T
			return zero, fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
	}
}

// Put returns an item to the pool and wakes waiters. It never blocks and keeps working
// after Abort so in-flight items can still come back.
func (p *Pool[T]) Put(item T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.count == len(p.ring) {
		return ErrOverflow
	}
	tail := (p.head + p.count) % len(p.ring)
	p.ring[tail] = item
	p.count++
	p.stats.Released++
	p.notifyLocked()
	return nil
}

// Abort records err and wakes every waiter; subsequent Get calls return it. Only the
// first error is kept.
func (p *Pool[T]) Abort(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
	p.notifyLocked()
}

// WaitFull blocks until every item has been returned, ctx is done or timeout elapses.
// It ignores Abort: draining must still wait for in-flight completions.
func (p *Pool[T]) WaitFull(ctx context.Context, timeout time.Duration) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		p.mu.Lock()
		if p.count == len(p.ring) {
			p.mu.Unlock()
			return nil
		}
		outstanding := len(p.ring) - p.count
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w with %d item(s) outstanding", ErrTimeout, outstanding)
		}
	}
}

// Snapshot lists the available items in FIFO order without taking them out of the pool.
// It is meant for teardown after WaitFull.
func (p *Pool[T]) Snapshot() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make([]T, 0, p.count)
	for i := 0; i < p.count; i++ {
		items = append(items, p.ring[(p.head+i)%len(p.ring)])
	}
	return items
}

func (p *Pool[T]) popLocked() T {
	var zero T
	item := p.ring[p.head]
	p.ring[p.head] = zero
	p.head = (p.head + 1) % len(p.ring)
	p.count--
	p.stats.Acquired++
	if out := len(p.ring) - p.count; out > p.stats.HighWater {
		p.stats.HighWater = out
	}
	p.notifyLocked()
	return item
}

func (p *Pool[T]) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}
