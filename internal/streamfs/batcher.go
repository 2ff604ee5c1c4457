package streamfs

import (
	"sync"
	"time"

	"github.com/TheMichaelB/streamfs/internal/models"
)

// Batcher coalesces change events. Pushed events are buffered until the
// debounce delay elapses or Flush is called, then delivered together to
// every subscriber.
type Batcher struct {
	mu      sync.Mutex
	delay   time.Duration
	buf     []models.ChangeEvent
	pending *time.Timer

	subs   map[int]func([]models.ChangeEvent)
	nextID int
}

// NewBatcher creates a batcher. A non-positive delay disables the timer so
// events are only delivered by Flush.
func NewBatcher(delay time.Duration) *Batcher {
	return &Batcher{
		delay: delay,
		subs:  make(map[int]func([]models.ChangeEvent)),
	}
}

// Push buffers events and arms the flush timer if it is not already armed.
func (b *Batcher) Push(evs ...models.ChangeEvent) {
	if len(evs) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, evs...)
	if b.pending == nil && b.delay > 0 {
		b.pending = time.AfterFunc(b.delay, b.Flush)
	}
}

// Flush delivers the buffered events now and disarms the timer.
func (b *Batcher) Flush() {
	b.mu.Lock()
	evs := b.buf
	b.buf = nil
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
	subs := make([]func([]models.ChangeEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	if len(evs) == 0 {
		return
	}
	for _, fn := range subs {
		fn(evs)
	}
}

// Pending returns the number of buffered events.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Subscribe registers fn for every flushed batch. The returned function
// removes the subscription.
func (b *Batcher) Subscribe(fn func([]models.ChangeEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Stop disarms the timer and drops buffered events.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
	b.buf = nil
}
