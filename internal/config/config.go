package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override file settings.
// NAV__DIRECTIONS__PROVIDER=google sets directions.provider.
const EnvPrefix = "NAV__"

// Config represents the complete engine configuration
type Config struct {
	Directions DirectionsConfig `koanf:"directions"`
	Guidance   GuidanceConfig   `koanf:"guidance"`
	Camera     CameraConfig     `koanf:"camera"`
	Cache      CacheConfig      `koanf:"cache"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Simulation SimulationConfig `koanf:"simulation"`
}

// DirectionsConfig selects and configures the directions provider
type DirectionsConfig struct {
	Provider string        `koanf:"provider" validate:"required,oneof=osrm google"`
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
	OSRM     OSRMConfig    `koanf:"osrm"`
	Google   GoogleConfig  `koanf:"google"`
}

// OSRMConfig holds OSRM route service settings
type OSRMConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	Profile string `koanf:"profile" validate:"required"`
}

// GoogleConfig holds Google Routes API settings
type GoogleConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url" validate:"required,url"`
}

// GuidanceConfig holds scheduler policy
type GuidanceConfig struct {
	RefreshInterval        time.Duration `koanf:"refresh_interval" validate:"gt=0"`
	ArrivalThresholdMeters float64       `koanf:"arrival_threshold_meters" validate:"gt=0"`
	// Zero keeps off-route correction on the periodic refresh only
	RerouteDeviationMeters float64 `koanf:"reroute_deviation_meters" validate:"gte=0"`
}

// CameraConfig holds camera follow settings
type CameraConfig struct {
	DebounceWindow        time.Duration `koanf:"debounce_window" validate:"gt=0"`
	MinDisplacementMeters float64       `koanf:"min_displacement_meters" validate:"gte=0"`
	Zoom                  float64       `koanf:"zoom" validate:"gte=0,lte=22"`
	Pitch                 float64       `koanf:"pitch" validate:"gte=0,lte=85"`
}

// CacheConfig holds route cache settings. An empty path keeps the cache in memory.
type CacheConfig struct {
	Path string `koanf:"path"`
}

// MetricsConfig holds the Prometheus endpoint address. Empty disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// SimulationConfig drives the position replay used by navsim
type SimulationConfig struct {
	SpeedMetersPerSecond float64       `koanf:"speed_mps" validate:"gt=0"`
	FixInterval          time.Duration `koanf:"fix_interval" validate:"gt=0"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Directions: DirectionsConfig{
			Provider: "osrm",
			Timeout:  10 * time.Second,
			OSRM: OSRMConfig{
				BaseURL: "https://router.project-osrm.org",
				Profile: "driving",
			},
			Google: GoogleConfig{
				BaseURL: "https://routes.googleapis.com",
			},
		},
		Guidance: GuidanceConfig{
			RefreshInterval:        8 * time.Second,
			ArrivalThresholdMeters: 50,
		},
		Camera: CameraConfig{
			DebounceWindow:        100 * time.Millisecond,
			MinDisplacementMeters: 5,
			Zoom:                  17,
			Pitch:                 45,
		},
		Cache: CacheConfig{
			Path: "data/routes.json",
		},
		Simulation: SimulationConfig{
			SpeedMetersPerSecond: 12,
			FixInterval:          time.Second,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path (if
// any), then NAV__ environment variables, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks field constraints and cross-field requirements
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Directions.Provider == "google" && c.Directions.Google.APIKey == "" {
		return errors.New("invalid config: directions.google.api_key is required for the google provider")
	}
	return nil
}
