package tcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/sphincter/metrics"
	"github.com/wricardo/sphincter/relay/protocol"
	"github.com/wricardo/sphincter/relay/room"
)

// Size of a single read from the producer.
const readBufferSize = 4096

// Rooms is the part of the registry a producer bridge needs.
type Rooms interface {
	Open() (*room.Room, error)
	Remove(id string)
}

// Options tunes a Bridge.
type Options struct {
	// IdleTimeout closes producers that send nothing for this long. Zero
	// disables it.
	IdleTimeout time.Duration
}

// Bridge drives producer connections: one room per connection, alive for as
// long as the connection is.
type Bridge struct {
	rooms Rooms
	log   zerolog.Logger
	opts  Options
}

// NewBridge creates a producer bridge backed by rooms.
func NewBridge(rooms Rooms, logger zerolog.Logger, opts Options) *Bridge {
	return &Bridge{
		rooms: rooms,
		log:   logger.With().Str("module", "tcp").Logger(),
		opts:  opts,
	}
}

// Serve relays conn until it closes, fails or ctx is cancelled. It always
// closes conn and tears the room down before returning. Orderly closes
// return nil.
func (b *Bridge) Serve(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	rm, err := b.rooms.Open()
	if err != nil {
		b.log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("cannot open room")
		return fmt.Errorf("open room: %w", err)
	}

	log := b.log.With().Str("room", rm.ID).Str("remote", conn.RemoteAddr().String()).Logger()
	metrics.RoomsCreated.Inc()
	metrics.RoomsActive.Inc()
	log.Info().Msg("room created")

	defer func() {
		b.rooms.Remove(rm.ID)
		rm.Close()
		metrics.RoomsActive.Dec()
	}()

	if _, err := conn.Write(protocol.Welcome(rm.ID)); err != nil {
		log.Warn().Err(err).Msg("room cleaned up: welcome failed")
		return fmt.Errorf("send welcome: %w", err)
	}

	// Both loops only return nil after ctx is cancelled, so the first
	// recorded error is the reason the bridge stopped.
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.readLoop(ctx, conn, rm, log)
	})
	g.Go(func() error {
		return b.writeLoop(ctx, conn, rm)
	})
	g.Go(func() error {
		// Unblocks a pending Read once either loop is done.
		<-ctx.Done()
		conn.Close()
		return nil
	})

	err = g.Wait()
	if isOrderly(err) {
		log.Info().Msg("room cleaned up: connection closed")
		return nil
	}

	log.Warn().Err(err).Msg("room cleaned up: connection error")
	return err
}

// readLoop publishes every chunk read from the producer and refreshes the
// handshake cache from the objects it contains.
func (b *Bridge) readLoop(ctx context.Context, conn net.Conn, rm *room.Room, log zerolog.Logger) error {
	buf := make([]byte, readBufferSize)
	for {
		if b.opts.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(b.opts.IdleTimeout)); err != nil {
				return err
			}
		}

		n, err := conn.Read(buf)
		if n > 0 {
			chunk := bytes.Clone(buf[:n])
			for _, p := range protocol.Scan(chunk) {
				if p.Op == protocol.OpHello || p.Op == protocol.OpIdentified {
					rm.UpdateCache(p.Op, p.Raw)
					log.Debug().Stringer("op", p.Op).Msg("handshake cached")
				}
			}
			rm.Publish(chunk)
			metrics.FanoutPublished.Inc()
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n == 0 {
			return io.EOF
		}
	}
}

// writeLoop writes subscriber messages to the producer verbatim.
func (b *Bridge) writeLoop(ctx context.Context, conn net.Conn, rm *room.Room) error {
	for {
		msg, err := rm.DrainInbound(ctx)
		if err != nil {
			return err
		}
		if _, err := conn.Write(msg); err != nil {
			return fmt.Errorf("write to producer: %w", err)
		}
		metrics.InboundMessages.Inc()
	}
}

func isOrderly(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, room.ErrRoomClosed)
}
