package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the client
type Config struct {
	API       APIConfig       `yaml:"api" env:", prefix=API_"`
	Session   SessionConfig   `yaml:"session" env:", prefix=SESSION_"`
	Nearby    NearbyConfig    `yaml:"nearby" env:", prefix=NEARBY_"`
	Tracking  TrackingConfig  `yaml:"tracking" env:", prefix=TRACKING_"`
	Location  LocationConfig  `yaml:"location" env:", prefix=LOCATION_"`
	Viewer    ViewerConfig    `yaml:"viewer" env:", prefix=VIEWER_"`
	Log       LogConfig       `yaml:"log" env:", prefix=LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:", prefix=OTEL_"`
}

// APIConfig holds backend configuration
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL, overwrite"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT, overwrite"`
}

// SessionConfig holds on-device session storage configuration
type SessionConfig struct {
	Path string `yaml:"path" env:"PATH, overwrite"`
}

// NearbyConfig holds nearby poller configuration
type NearbyConfig struct {
	RadiusMeters  float64       `yaml:"radius_meters" env:"RADIUS_METERS, overwrite"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT, overwrite"`
	FocusDebounce time.Duration `yaml:"focus_debounce" env:"FOCUS_DEBOUNCE, overwrite"`
}

// TrackingConfig holds live tracker thresholds
type TrackingConfig struct {
	TimeInterval     time.Duration `yaml:"time_interval" env:"TIME_INTERVAL, overwrite"`
	DistanceInterval float64       `yaml:"distance_interval_meters" env:"DISTANCE_INTERVAL_METERS, overwrite"`
}

// LocationConfig selects the device location source
type LocationConfig struct {
	// Source is "static" or "websocket"
	Source    string  `yaml:"source" env:"SOURCE, overwrite"`
	Latitude  float64 `yaml:"latitude" env:"LATITUDE, overwrite"`
	Longitude float64 `yaml:"longitude" env:"LONGITUDE, overwrite"`
	FeedURL   string  `yaml:"feed_url" env:"FEED_URL, overwrite"`
}

// ViewerConfig holds the web map viewer configuration
type ViewerConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED, overwrite"`
	Host    string `yaml:"host" env:"HOST, overwrite"`
	Port    int    `yaml:"port" env:"PORT, overwrite"`
	Token   string `yaml:"token" env:"TOKEN, overwrite"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL, overwrite"`
}

// TelemetryConfig holds tracing configuration
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" env:"EXPORTER_OTLP_ENDPOINT, overwrite"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Session: SessionConfig{
			Path: defaultSessionPath(),
		},
		Nearby: NearbyConfig{
			RadiusMeters:  5000,
			FetchTimeout:  10 * time.Second,
			FocusDebounce: 500 * time.Millisecond,
		},
		Tracking: TrackingConfig{
			TimeInterval:     5 * time.Second,
			DistanceInterval: 10,
		},
		Location: LocationConfig{
			Source: "static",
		},
		Viewer: ViewerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an optional YAML file, then applies PICKME_* environment overrides.
// A missing file is not an error.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := Default()

	// .env is optional
	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: envconfig.PrefixLookuper("PICKME_", envconfig.OsLookuper()),
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would make the client unusable
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.Nearby.RadiusMeters <= 0 {
		return errors.New("nearby.radius_meters must be positive")
	}
	if c.Nearby.FetchTimeout <= 0 {
		return errors.New("nearby.fetch_timeout must be positive")
	}
	switch c.Location.Source {
	case "static":
	case "websocket":
		if c.Location.FeedURL == "" {
			return errors.New("location.feed_url is required for the websocket source")
		}
	default:
		return fmt.Errorf("unknown location source %q", c.Location.Source)
	}
	return nil
}

// ViewerAddr returns the listen address of the web map viewer
func (c *ViewerConfig) ViewerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".pickme-session.yaml"
	}
	return dir + "/pickme/session.yaml"
}
