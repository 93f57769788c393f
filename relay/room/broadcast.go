package room

import (
	"context"
	"sync"
	"sync/atomic"
)

// Broadcaster is a ring-buffer backed multi-consumer channel. The producer
// publishes without ever blocking; each Cursor reads at its own pace. A cursor
// that falls more than the ring capacity behind loses its oldest unread
// messages and the loss is counted on the cursor.
type Broadcaster struct {
	mu      sync.Mutex
	ring    [][]byte
	head    uint64 // sequence number of the next publish
	closed  bool
	notify  chan struct{}
	cursors int

	dropped atomic.Uint64
}

// NewBroadcaster creates a broadcaster retaining the last capacity messages.
func NewBroadcaster(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultFanoutCapacity
	}
	return &Broadcaster{
		ring:   make([][]byte, capacity),
		notify: make(chan struct{}),
	}
}

// Publish appends msg to the ring and wakes every waiting cursor. It returns
// false once the broadcaster is closed.
func (b *Broadcaster) Publish(msg []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	b.ring[b.head%uint64(len(b.ring))] = msg
	b.head++

	close(b.notify)
	b.notify = make(chan struct{})
	return true
}

// Subscribe returns a cursor positioned at the next message to be published.
func (b *Broadcaster) Subscribe() *Cursor {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cursors++
	return &Cursor{b: b, next: b.head}
}

// Close wakes all cursors. Messages still in the ring remain readable;
// afterwards Recv reports ErrRoomClosed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
}

// Published returns the number of messages published so far.
func (b *Broadcaster) Published() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head
}

// Dropped returns the total number of messages lost across all cursors.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Cursors returns the number of attached cursors.
func (b *Broadcaster) Cursors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursors
}

// Cursor is an independent read position on a Broadcaster. A cursor must be
// read from a single goroutine.
type Cursor struct {
	b        *Broadcaster
	next     uint64
	detached bool

	dropped atomic.Uint64
}

// Recv returns the next message for this cursor, waiting until one is
// published. It returns ErrRoomClosed after the broadcaster is closed and
// drained, ErrCursorClosed after Close, or the context error.
func (c *Cursor) Recv(ctx context.Context) ([]byte, error) {
	b := c.b
	for {
		b.mu.Lock()
		if c.detached {
			b.mu.Unlock()
			return nil, ErrCursorClosed
		}

		capacity := uint64(len(b.ring))
		if b.head > capacity && c.next < b.head-capacity {
			lost := b.head - capacity - c.next
			c.next = b.head - capacity
			c.dropped.Add(lost)
			b.dropped.Add(lost)
		}

		if c.next < b.head {
			msg := b.ring[c.next%capacity]
			c.next++
			b.mu.Unlock()
			return msg, nil
		}

		if b.closed {
			b.mu.Unlock()
			return nil, ErrRoomClosed
		}

		wait := b.notify
		b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Dropped returns how many messages this cursor missed because it lagged.
func (c *Cursor) Dropped() uint64 {
	return c.dropped.Load()
}

// Close detaches the cursor. It is safe to call more than once.
func (c *Cursor) Close() {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.detached {
		return
	}
	c.detached = true
	c.b.cursors--
}
