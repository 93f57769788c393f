// Command sphincter starts the relay.
//
// Producers connect over plain TCP and each one gets a room with a six
// character code. Browser clients join that room over WebSocket
// (/ws?room=CODE) and share the producer's single upstream connection.
//
// Flags can also be set through environment variables or a .env file, and an
// optional ngrok tunnel exposes the HTTP side publicly during development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/sphincter/api"
	"github.com/wricardo/sphincter/config"
	"github.com/wricardo/sphincter/logging"
	"github.com/wricardo/sphincter/relay/room"
	"github.com/wricardo/sphincter/transport/mcp"
	"github.com/wricardo/sphincter/transport/tcp"
	"github.com/wricardo/sphincter/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Sphincter Relay"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newCommand builds the root command with every flag bound to its
// environment variable.
func newCommand() *cli.Command {
	def := config.Default()

	return &cli.Command{
		Name:    "sphincter",
		Usage:   "Relay TCP producers to WebSocket subscribers",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "tcp-addr",
				Value:   def.TCPAddr,
				Usage:   "Producer listen address",
				Sources: cli.EnvVars("SPHINCTER_TCP_ADDR"),
			},
			&cli.StringFlag{
				Name:    "ws-addr",
				Value:   def.WSAddr,
				Usage:   "HTTP/WebSocket listen address",
				Sources: cli.EnvVars("SPHINCTER_WS_ADDR"),
			},
			&cli.IntFlag{
				Name:    "fanout-capacity",
				Value:   def.FanoutCapacity,
				Usage:   "Messages buffered per room for subscribers before the oldest are dropped",
				Sources: cli.EnvVars("SPHINCTER_FANOUT_CAPACITY"),
			},
			&cli.IntFlag{
				Name:    "inbound-capacity",
				Value:   def.InboundCapacity,
				Usage:   "Subscriber messages queued per room before senders block",
				Sources: cli.EnvVars("SPHINCTER_INBOUND_CAPACITY"),
			},
			&cli.DurationFlag{
				Name:    "idle-timeout",
				Value:   def.IdleTimeout,
				Usage:   "Close producers silent for this long (0 disables)",
				Sources: cli.EnvVars("SPHINCTER_IDLE_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "room-id-retry",
				Value:   def.RoomIDRetry,
				Usage:   "Regenerate colliding room IDs instead of replacing the live room",
				Sources: cli.EnvVars("SPHINCTER_ROOM_ID_RETRY"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   def.LogLevel,
				Usage:   "trace, debug, info, warn or error",
				Sources: cli.EnvVars("SPHINCTER_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   def.LogFormat,
				Usage:   "json or console",
				Sources: cli.EnvVars("SPHINCTER_LOG_FORMAT"),
			},
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "Enable ngrok tunnel for the HTTP side",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "Ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "Custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := configFromCommand(cmd)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
			if err != nil {
				return err
			}

			return newRelay(cfg, logger).run(ctx)
		},
	}
}

func configFromCommand(cmd *cli.Command) config.Config {
	return config.Config{
		TCPAddr:         cmd.String("tcp-addr"),
		WSAddr:          cmd.String("ws-addr"),
		FanoutCapacity:  cmd.Int("fanout-capacity"),
		InboundCapacity: cmd.Int("inbound-capacity"),
		IdleTimeout:     cmd.Duration("idle-timeout"),
		RoomIDRetry:     cmd.Bool("room-id-retry"),
		LogLevel:        cmd.String("log-level"),
		LogFormat:       cmd.String("log-format"),
		Ngrok:           cmd.Bool("ngrok"),
		NgrokAuth:       cmd.String("ngrok-auth"),
		NgrokDomain:     cmd.String("ngrok-domain"),
	}
}

// relay owns the registry shared by the producer and subscriber sides.
type relay struct {
	cfg       config.Config
	log       zerolog.Logger
	registry  *room.Registry
	producers *tcp.Server
}

func newRelay(cfg config.Config, logger zerolog.Logger) *relay {
	registry := room.NewRegistry(cfg.RegistryOptions())
	bridge := tcp.NewBridge(registry, logger, tcp.Options{IdleTimeout: cfg.IdleTimeout})

	return &relay{
		cfg:       cfg,
		log:       logger,
		registry:  registry,
		producers: tcp.NewServer(bridge, logger),
	}
}

// run binds both listeners and serves until ctx is cancelled.
func (r *relay) run(ctx context.Context) error {
	tcpLn, err := net.Listen("tcp", r.cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", r.cfg.TCPAddr, err)
	}

	httpLn, err := net.Listen("tcp", r.cfg.WSAddr)
	if err != nil {
		tcpLn.Close()
		return fmt.Errorf("listen on %s: %w", r.cfg.WSAddr, err)
	}

	return r.serve(ctx, tcpLn, httpLn)
}

// serve runs the producer listener, the HTTP server and the optional ngrok
// tunnel. The first failure stops everything.
func (r *relay) serve(ctx context.Context, tcpLn, httpLn net.Listener) error {
	r.log.Info().Str("version", Version).Msg("starting " + AppName)

	g, ctx := errgroup.WithContext(ctx)

	handler := r.handler(ctx)
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		return r.producers.Serve(ctx, tcpLn)
	})

	g.Go(func() error {
		addr := httpLn.Addr().String()
		r.log.Info().
			Str("addr", addr).
			Str("websocket", fmt.Sprintf("ws://%s/ws?room=<room_id>", addr)).
			Str("api", fmt.Sprintf("http://%s/api/rooms", addr)).
			Str("mcp", fmt.Sprintf("http://%s/mcp", addr)).
			Msg("HTTP server listening")

		if err := httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		r.log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.log.Warn().Err(err).Msg("HTTP server shutdown error")
		}
		return nil
	})

	if r.cfg.Ngrok {
		g.Go(func() error {
			r.serveNgrok(ctx, handler)
			return nil
		})
	}

	err := g.Wait()
	r.log.Info().Msg("server stopped")
	return err
}

// handler wires the HTTP surface. Subscribers are disconnected when ctx ends.
func (r *relay) handler(ctx context.Context) http.Handler {
	ws := websocket.NewHandler(ctx, r.registry, websocket.NewBridge(r.log))
	admin := mcp.NewServer(AppName, Version, r.registry)
	return api.NewServer(r.registry, ws, admin, r.log)
}

// serveNgrok exposes handler through an ngrok tunnel until ctx is cancelled.
// A tunnel failure is logged and leaves the local servers running.
func (r *relay) serveNgrok(ctx context.Context, handler http.Handler) {
	log := r.log.With().Str("module", "ngrok").Logger()
	log.Info().Msg("starting ngrok tunnel")

	var tunnel ngrokConfig.Tunnel
	if r.cfg.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(r.cfg.NgrokDomain))
		log.Info().Str("domain", r.cfg.NgrokDomain).Msg("using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(r.cfg.NgrokAuth))
	if err != nil {
		log.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	log.Info().
		Str("url", tun.URL()).
		Str("websocket", tun.URL()+"/ws?room=<room_id>").
		Msg("ngrok tunnel established")

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 15 * time.Second}
	stop := context.AfterFunc(ctx, func() { srv.Close() })
	defer stop()

	if err := srv.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("ngrok server error")
	}
	log.Info().Msg("ngrok tunnel closed")
}
