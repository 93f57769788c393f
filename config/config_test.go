package config

import (
	"errors"
	"testing"
	"time"

	"github.com/wricardo/sphincter/relay/room"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.TCPAddr != "0.0.0.0:9000" {
		t.Errorf("Expected default TCP addr 0.0.0.0:9000, got %s", cfg.TCPAddr)
	}
	if cfg.WSAddr != "127.0.0.1:8080" {
		t.Errorf("Expected default WS addr 127.0.0.1:8080, got %s", cfg.WSAddr)
	}
	if cfg.FanoutCapacity != 100 || cfg.InboundCapacity != 100 {
		t.Errorf("Expected capacities 100/100, got %d/%d", cfg.FanoutCapacity, cfg.InboundCapacity)
	}
	if cfg.IdleTimeout != 0 {
		t.Errorf("Expected idle timeout disabled by default, got %v", cfg.IdleTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty tcp addr", func(c *Config) { c.TCPAddr = "" }},
		{"bad ws addr", func(c *Config) { c.WSAddr = "localhost" }},
		{"zero fanout", func(c *Config) { c.FanoutCapacity = 0 }},
		{"negative inbound", func(c *Config) { c.InboundCapacity = -1 }},
		{"negative idle timeout", func(c *Config) { c.IdleTimeout = -time.Second }},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"ngrok without token", func(c *Config) { c.Ngrok = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestRegistryOptions(t *testing.T) {
	cfg := Default()
	cfg.FanoutCapacity = 10
	cfg.InboundCapacity = 20

	opts := cfg.RegistryOptions()
	if opts.Policy != room.CollisionRetry {
		t.Errorf("Expected retry policy, got %v", opts.Policy)
	}
	if opts.Room.FanoutCapacity != 10 || opts.Room.InboundCapacity != 20 {
		t.Errorf("Capacities not carried over: %+v", opts.Room)
	}

	cfg.RoomIDRetry = false
	if cfg.RegistryOptions().Policy != room.CollisionOverwrite {
		t.Error("Expected overwrite policy when retry is disabled")
	}
}
