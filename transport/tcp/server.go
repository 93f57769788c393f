package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Server accepts producer connections and hands each one to the bridge.
type Server struct {
	bridge *Bridge
	log    zerolog.Logger
	wg     sync.WaitGroup
}

// NewServer creates a TCP server for bridge.
func NewServer(bridge *Bridge, logger zerolog.Logger) *Server {
	return &Server{
		bridge: bridge,
		log:    logger.With().Str("module", "tcp").Logger(),
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes ln and
// waits for every bridge to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("producer listener ready")

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error().Err(err).Msg("accept error")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("new producer connection")

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// Bridge.Serve logs its own outcome.
			_ = s.bridge.Serve(ctx, conn)
		}()
	}
}
