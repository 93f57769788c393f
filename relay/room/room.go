package room

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wricardo/sphincter/relay/protocol"
)

const (
	DefaultFanoutCapacity  = 100
	DefaultInboundCapacity = 100
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room already exists")
	ErrRoomIDExhausted = errors.New("could not generate a free room ID")
	ErrRoomClosed      = errors.New("room closed")
	ErrCursorClosed    = errors.New("cursor closed")
)

// Options sizes the buffers of a room.
type Options struct {
	FanoutCapacity  int
	InboundCapacity int
}

// Room is one producer's relay session: the fan-out channel towards
// subscribers, the inbound queue towards the producer and the handshake cache.
type Room struct {
	ID        string
	CreatedAt time.Time

	fanout  *Broadcaster
	inbound chan []byte

	hello      atomic.Pointer[[]byte]
	identified atomic.Pointer[[]byte]

	enqueued  atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
}

// Info is a point-in-time view of a room for the admin surfaces.
type Info struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Subscribers   int       `json:"subscribers"`
	Published     uint64    `json:"published"`
	Dropped       uint64    `json:"dropped"`
	Enqueued      uint64    `json:"enqueued"`
	InboundDepth  int       `json:"inbound_depth"`
	HasHello      bool      `json:"has_hello"`
	HasIdentified bool      `json:"has_identified"`
}

// New creates a room. Zero capacities fall back to the defaults.
func New(id string, opts Options) *Room {
	if opts.InboundCapacity <= 0 {
		opts.InboundCapacity = DefaultInboundCapacity
	}
	return &Room{
		ID:        id,
		CreatedAt: time.Now(),
		fanout:    NewBroadcaster(opts.FanoutCapacity),
		inbound:   make(chan []byte, opts.InboundCapacity),
		done:      make(chan struct{}),
	}
}

// Publish fans msg out to every subscriber without blocking.
func (r *Room) Publish(msg []byte) {
	r.fanout.Publish(msg)
}

// Subscribe returns a cursor that sees messages published from now on.
func (r *Room) Subscribe() *Cursor {
	return r.fanout.Subscribe()
}

// EnqueueInbound queues msg for the producer, blocking while the queue is
// full.
func (r *Room) EnqueueInbound(ctx context.Context, msg []byte) error {
	select {
	case <-r.done:
		return ErrRoomClosed
	default:
	}

	select {
	case r.inbound <- msg:
		r.enqueued.Add(1)
		return nil
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DrainInbound waits for the next message queued by a subscriber. Only the
// producer bridge calls it.
func (r *Room) DrainInbound(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-r.inbound:
		return msg, nil
	case <-r.done:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// UpdateCache stores raw as the cached Hello (op 0) or Identified (op 2).
// Other opcodes are ignored.
func (r *Room) UpdateCache(op protocol.Op, raw []byte) {
	msg := bytes.Clone(raw)
	switch op {
	case protocol.OpHello:
		r.hello.Store(&msg)
	case protocol.OpIdentified:
		r.identified.Store(&msg)
	}
}

// Hello returns the cached Hello message, or nil.
func (r *Room) Hello() []byte {
	return load(&r.hello)
}

// Identified returns the cached Identified message, or nil.
func (r *Room) Identified() []byte {
	return load(&r.identified)
}

// Close tears the room down: blocked enqueuers and every cursor wake up with
// ErrRoomClosed. Close is idempotent.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.fanout.Close()
	})
}

// Done is closed when the room is torn down.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) Info() Info {
	return Info{
		ID:            r.ID,
		CreatedAt:     r.CreatedAt,
		Subscribers:   r.fanout.Cursors(),
		Published:     r.fanout.Published(),
		Dropped:       r.fanout.Dropped(),
		Enqueued:      r.enqueued.Load(),
		InboundDepth:  len(r.inbound),
		HasHello:      r.Hello() != nil,
		HasIdentified: r.Identified() != nil,
	}
}

func load(p *atomic.Pointer[[]byte]) []byte {
	if v := p.Load(); v != nil {
		return *v
	}
	return nil
}
