// Package config holds the relay's runtime configuration.
//
// Values come from command-line flags, environment variables and an optional
// .env file (see main.go); this package only defines the shape, the defaults
// and validation.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/wricardo/sphincter/logging"
	"github.com/wricardo/sphincter/relay/room"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultTCPAddr = "0.0.0.0:9000"
	DefaultWSAddr  = "127.0.0.1:8080"
)

// Config is the full set of relay settings.
type Config struct {
	TCPAddr string
	WSAddr  string

	FanoutCapacity  int
	InboundCapacity int

	// IdleTimeout closes a producer that sends nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// RoomIDRetry regenerates colliding room IDs instead of replacing the
	// live room.
	RoomIDRetry bool

	LogLevel  string
	LogFormat string

	Ngrok       bool
	NgrokAuth   string
	NgrokDomain string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		TCPAddr:         DefaultTCPAddr,
		WSAddr:          DefaultWSAddr,
		FanoutCapacity:  room.DefaultFanoutCapacity,
		InboundCapacity: room.DefaultInboundCapacity,
		RoomIDRetry:     true,
		LogLevel:        "info",
		LogFormat:       logging.FormatJSON,
	}
}

// Validate reports the first problem found, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if err := validateAddr("tcp-addr", c.TCPAddr); err != nil {
		return err
	}
	if err := validateAddr("ws-addr", c.WSAddr); err != nil {
		return err
	}
	if c.FanoutCapacity <= 0 {
		return fmt.Errorf("%w: fanout capacity must be positive, got %d", ErrInvalidConfig, c.FanoutCapacity)
	}
	if c.InboundCapacity <= 0 {
		return fmt.Errorf("%w: inbound capacity must be positive, got %d", ErrInvalidConfig, c.InboundCapacity)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle timeout must not be negative", ErrInvalidConfig)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch c.LogFormat {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("%w: log format must be %q or %q", ErrInvalidConfig, logging.FormatJSON, logging.FormatConsole)
	}
	if c.Ngrok && c.NgrokAuth == "" {
		return fmt.Errorf("%w: ngrok enabled without an auth token", ErrInvalidConfig)
	}
	return nil
}

// RegistryOptions translates the config into room registry options.
func (c Config) RegistryOptions() room.RegistryOptions {
	policy := room.CollisionOverwrite
	if c.RoomIDRetry {
		policy = room.CollisionRetry
	}
	return room.RegistryOptions{
		Policy: policy,
		Room: room.Options{
			FanoutCapacity:  c.FanoutCapacity,
			InboundCapacity: c.InboundCapacity,
		},
	}
}

func validateAddr(name, addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, name)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrInvalidConfig, name, addr, err)
	}
	return nil
}
