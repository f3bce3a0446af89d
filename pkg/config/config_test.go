package config

import (
	"testing"
	"time"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.HTTP.MaxConcurrent = 5
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxConcurrent = 10
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 65536
	return cfg
}

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got error: %v", err)
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_RateLimiting_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "http rps must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.HTTP.RequestsPerSecond = 0
			},
		},
		{
			name: "http burst must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.HTTP.Burst = 0
			},
		},
		{
			name: "http max concurrent must be >= 0",
			mutate: func(c *Config) {
				c.RateLimiting.HTTP.MaxConcurrent = -1
			},
		},
		{
			name: "ws connections per minute must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.WebSocket.ConnectionsPerMinute = 0
			},
		},
		{
			name: "ws messages per second must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.WebSocket.MessagesPerSecond = 0
			},
		},
		{
			name: "ws burst must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.WebSocket.Burst = 0
			},
		},
		{
			name: "ws max concurrent must be >= 0",
			mutate: func(c *Config) {
				c.RateLimiting.WebSocket.MaxConcurrent = -1
			},
		},
		{
			name: "ws max message size must be >= 0",
			mutate: func(c *Config) {
				c.RateLimiting.WebSocket.MaxMessageSizeBytes = -1
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			cfg.Hub.ReadTimeout = time.Second
			cfg.Hub.WriteTimeout = time.Second
			cfg.Hub.PingInterval = time.Second
			cfg.Hub.PongTimeout = time.Second
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestValidate_RejectsMissingRegistryStaleTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Registry.StaleTTL = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when registry.stale_ttl is zero")
	}
}

func TestValidate_RejectsInvertedPortRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WebRTC.PortRange.Min = 50000
	cfg.WebRTC.PortRange.Max = 40000

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for inverted port range")
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing config file, got %v", err)
	}
	if cfg.Hub.Address != DefaultConfig().Hub.Address {
		t.Fatalf("expected default hub address, got %q", cfg.Hub.Address)
	}
}
