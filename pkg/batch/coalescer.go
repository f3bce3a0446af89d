package batch

import (
	"context"
	"sync"
	"time"
)

// Coalescer collapses bursts of same-key updates into the single latest
// value per key, flushing on a fixed window rather than on size. Where
// Batcher (its predecessor in this package) accumulated every operation
// for replay, Coalescer only ever remembers the newest value per key --
// the right shape for "last region wins" style updates, where replaying
// every intermediate value would be wasted work downstream.
type Coalescer[K comparable, V any] struct {
	window    time.Duration
	mu        sync.Mutex
	pending   map[K]V
	flushChan chan struct{}
	stopChan  chan struct{}
	stopOnce  sync.Once
	processor CoalescedProcessor[K, V]
}

// CoalescedProcessor receives one flush's worth of latest-value-per-key
// updates.
type CoalescedProcessor[K comparable, V any] interface {
	ProcessCoalesced(ctx context.Context, updates map[K]V) error
}

// NewCoalescer starts a Coalescer that flushes accumulated updates to
// processor at most once per window.
func NewCoalescer[K comparable, V any](window time.Duration, processor CoalescedProcessor[K, V]) *Coalescer[K, V] {
	c := &Coalescer[K, V]{
		window:    window,
		pending:   make(map[K]V),
		flushChan: make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
		processor: processor,
	}

	go c.run()

	return c
}

// Put records the latest value for key, overwriting whatever was pending
// for it since the last flush.
func (c *Coalescer[K, V]) Put(key K, value V) {
	c.mu.Lock()
	c.pending[key] = value
	c.mu.Unlock()
}

// Flush immediately delivers all pending updates and clears them.
func (c *Coalescer[K, V]) Flush(ctx context.Context) error {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return nil
	}

	updates := c.pending
	c.pending = make(map[K]V)
	c.mu.Unlock()

	return c.processor.ProcessCoalesced(ctx, updates)
}

// run flushes on a fixed interval for the lifetime of the coalescer.
func (c *Coalescer[K, V]) run() {
	ticker := time.NewTicker(c.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.Flush(context.Background())
		case <-c.stopChan:
			_ = c.Flush(context.Background())
			return
		}
	}
}

// Stop stops the coalescer after a final flush.
func (c *Coalescer[K, V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

// PendingCount returns the number of distinct keys awaiting their next
// flush.
func (c *Coalescer[K, V]) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

