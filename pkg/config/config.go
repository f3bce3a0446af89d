package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the hub/broadcaster binaries' shared configuration shape,
// loaded from YAML with environment overrides on top. Grounded on the
// teacher's pkg/config/config.go: same Load/DefaultConfig/
// applyEnvOverrides structure, re-sectioned around this repository's own
// components instead of the teacher's mesh/CDN/auth stack.
type Config struct {
	Hub struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
	} `yaml:"hub"`

	Registry struct {
		StaleTTL              time.Duration `yaml:"stale_ttl"`
		RegionCoalesceWindow  time.Duration `yaml:"region_coalesce_window"`
	} `yaml:"registry"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		PortRange struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
		OfferTimeout time.Duration `yaml:"offer_timeout"`
	} `yaml:"webrtc"`

	Source struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
		FPS    int `yaml:"fps"`
	} `yaml:"source"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled"`
		PrometheusPort    int           `yaml:"prometheus_port"`
		MetricsInterval   time.Duration `yaml:"metrics_interval"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int     `yaml:"connections_per_minute"`
			MessagesPerSecond    float64 `yaml:"messages_per_second"`
			Burst                int     `yaml:"burst"`
			MaxConcurrent        int     `yaml:"max_concurrent_connections"`
			MaxMessageSizeBytes  int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Hub.Address == "" {
		return fmt.Errorf("hub.address must not be empty")
	}
	if c.Hub.ReadTimeout <= 0 {
		return fmt.Errorf("hub.read_timeout must be > 0")
	}
	if c.Hub.WriteTimeout <= 0 {
		return fmt.Errorf("hub.write_timeout must be > 0")
	}
	if c.Hub.ShutdownTimeout <= 0 {
		return fmt.Errorf("hub.shutdown_timeout must be > 0")
	}
	if c.Hub.PingInterval <= 0 {
		return fmt.Errorf("hub.ping_interval must be > 0")
	}
	if c.Hub.PongTimeout <= 0 {
		return fmt.Errorf("hub.pong_timeout must be > 0")
	}

	if c.Registry.StaleTTL <= 0 {
		return fmt.Errorf("registry.stale_ttl must be > 0")
	}
	if c.Registry.RegionCoalesceWindow <= 0 {
		return fmt.Errorf("registry.region_coalesce_window must be > 0")
	}

	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}
	if c.WebRTC.OfferTimeout <= 0 {
		return fmt.Errorf("webrtc.offer_timeout must be > 0")
	}

	if c.Source.Width <= 0 || c.Source.Height <= 0 {
		return fmt.Errorf("source.width and source.height must be > 0")
	}
	if c.Source.FPS <= 0 {
		return fmt.Errorf("source.fps must be > 0")
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}
	if c.Monitoring.MetricsInterval <= 0 {
		return fmt.Errorf("monitoring.metrics_interval must be > 0")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file is not an error: it falls back to defaults.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults, matching the
// numeric policy constants in internal/core/domain where a default
// mirrors one.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Hub.Address = ":3000"
	cfg.Hub.ReadTimeout = 60 * time.Second
	cfg.Hub.WriteTimeout = 10 * time.Second
	cfg.Hub.ShutdownTimeout = 30 * time.Second
	cfg.Hub.PingInterval = 30 * time.Second
	cfg.Hub.PongTimeout = 60 * time.Second

	cfg.Registry.StaleTTL = 1800 * time.Second
	cfg.Registry.RegionCoalesceWindow = 50 * time.Millisecond

	cfg.WebRTC.OfferTimeout = 15 * time.Second

	cfg.Source.Width = 1280
	cfg.Source.Height = 720
	cfg.Source.FPS = 30

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090
	cfg.Monitoring.MetricsInterval = 30 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 100
	cfg.RateLimiting.WebSocket.Burst = 200
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 64 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("VISTAHUB_HUB_ADDRESS"); addr != "" {
		c.Hub.Address = addr
	}
	if level := os.Getenv("VISTAHUB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if ttl := os.Getenv("VISTAHUB_STALE_TTL_SECONDS"); ttl != "" {
		if seconds, err := time.ParseDuration(ttl + "s"); err == nil {
			c.Registry.StaleTTL = seconds
		}
	}
}
