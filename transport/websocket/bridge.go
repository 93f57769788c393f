package websocket

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/sphincter/metrics"
	"github.com/wricardo/sphincter/relay/protocol"
	"github.com/wricardo/sphincter/relay/room"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Rooms are unauthenticated; any origin may join.
		return true
	},
}

// Rooms is the part of the registry the subscriber side needs.
type Rooms interface {
	Lookup(id string) (*room.Room, bool)
}

// Handler upgrades /ws?room=ID requests and attaches them to live rooms.
type Handler struct {
	rooms  Rooms
	bridge *Bridge
	base   context.Context
	log    zerolog.Logger
}

// NewHandler creates a subscriber handler. Cancelling ctx disconnects every
// subscriber it is serving.
func NewHandler(ctx context.Context, rooms Rooms, bridge *Bridge) *Handler {
	return &Handler{
		rooms:  rooms,
		bridge: bridge,
		base:   ctx,
		log:    bridge.log,
	}
}

// ServeHTTP handles a subscriber connection request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("room")))
	if id == "" {
		http.Error(w, "Missing room parameter", http.StatusBadRequest)
		return
	}

	rm, ok := h.rooms.Lookup(id)
	if !ok {
		h.log.Warn().Str("room", id).Str("remote", r.RemoteAddr).Msg("access denied: room not found")
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		h.log.Warn().Err(err).Str("room", id).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.base, cancel)
	defer stop()

	h.bridge.Serve(ctx, conn, rm)
}

// Bridge relays between one room and its websocket subscribers.
type Bridge struct {
	log zerolog.Logger
}

// NewBridge creates a subscriber bridge.
func NewBridge(logger zerolog.Logger) *Bridge {
	return &Bridge{log: logger.With().Str("module", "websocket").Logger()}
}

// subscriber is one websocket client attached to a room.
type subscriber struct {
	conn   *websocket.Conn
	room   *room.Room
	cursor *room.Cursor
	log    zerolog.Logger

	// gorilla allows a single concurrent writer.
	wmu sync.Mutex
}

// Serve relays conn to and from rm until the client leaves, the room closes
// or ctx is cancelled. It closes conn but never touches the registry.
// Orderly endings return nil.
func (b *Bridge) Serve(ctx context.Context, conn *websocket.Conn, rm *room.Room) error {
	defer conn.Close()

	s := &subscriber{
		conn:   conn,
		room:   rm,
		cursor: rm.Subscribe(),
		log: b.log.With().
			Str("room", rm.ID).
			Str("session", uuid.NewString()).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
	defer s.cursor.Close()

	metrics.SubscribersActive.Inc()
	defer metrics.SubscribersActive.Dec()
	s.log.Info().Msg("subscriber joined")

	// The cursor already exists, so nothing published from here on is
	// missed while the Hello goes out first.
	if hello := rm.Hello(); hello != nil {
		if err := s.write(websocket.TextMessage, hello); err != nil {
			s.log.Warn().Err(err).Msg("subscriber left: hello replay failed")
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.writePump(ctx)
	})
	g.Go(func() error {
		return s.readPump(ctx)
	})
	g.Go(func() error {
		return s.pingPump(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		conn.Close()
		return nil
	})

	err := g.Wait()
	if isOrderly(err) {
		s.log.Info().AnErr("reason", err).Msg("subscriber left")
		return nil
	}

	s.log.Warn().Err(err).Msg("subscriber left: connection error")
	return err
}

// writePump sends fan-out messages to the client. Valid UTF-8 goes out as a
// text frame, anything else as binary.
func (s *subscriber) writePump(ctx context.Context) error {
	var reported uint64
	for {
		msg, err := s.cursor.Recv(ctx)
		if err != nil {
			if errors.Is(err, room.ErrRoomClosed) {
				s.writeClose(websocket.CloseGoingAway, "room closed")
			}
			return err
		}

		if dropped := s.cursor.Dropped(); dropped > reported {
			metrics.FanoutDropped.Add(float64(dropped - reported))
			s.log.Debug().Uint64("dropped", dropped-reported).Msg("subscriber lagging, messages skipped")
			reported = dropped
		}

		messageType := websocket.BinaryMessage
		if utf8.Valid(msg) {
			messageType = websocket.TextMessage
		}
		if err := s.write(messageType, msg); err != nil {
			return err
		}
	}
}

// readPump forwards client messages to the producer. An Identify is answered
// from the room's cache when one is available and never reaches the producer.
func (s *subscriber) readPump(ctx context.Context) error {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}

		if messageType == websocket.TextMessage && s.interceptIdentify(data) {
			continue
		}

		if err := s.room.EnqueueInbound(ctx, data); err != nil {
			return err
		}
		// Enqueue may have blocked behind a slow producer.
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// interceptIdentify replies to an Identify with the cached Identified and
// reports whether it did.
func (s *subscriber) interceptIdentify(data []byte) bool {
	op, ok := protocol.Opcode(data)
	if !ok || op != protocol.OpIdentify {
		return false
	}

	identified := s.room.Identified()
	if identified == nil {
		return false
	}

	if err := s.write(websocket.TextMessage, identified); err != nil {
		// The write pump will hit the same error.
		s.log.Debug().Err(err).Msg("cached identified reply failed")
	}
	metrics.IdentifyIntercepted.Inc()
	s.log.Debug().Msg("identify answered from cache")
	return true
}

func (s *subscriber) pingPump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *subscriber) write(messageType int, data []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

func (s *subscriber) writeClose(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func isOrderly(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, room.ErrRoomClosed) ||
		websocket.IsCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived)
}
