package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8*time.Second, cfg.Guidance.RefreshInterval)
	assert.Equal(t, 50.0, cfg.Guidance.ArrivalThresholdMeters)
	assert.Equal(t, 100*time.Millisecond, cfg.Camera.DebounceWindow)
	assert.Equal(t, 0.0, cfg.Guidance.RerouteDeviationMeters)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
directions:
  provider: google
  timeout: 5s
  google:
    api_key: test-key
guidance:
  refresh_interval: 15s
  reroute_deviation_meters: 200
cache:
  path: /tmp/routes.json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "google", cfg.Directions.Provider)
	assert.Equal(t, 5*time.Second, cfg.Directions.Timeout)
	assert.Equal(t, "test-key", cfg.Directions.Google.APIKey)
	assert.Equal(t, "https://routes.googleapis.com", cfg.Directions.Google.BaseURL, "unset keys keep defaults")
	assert.Equal(t, 15*time.Second, cfg.Guidance.RefreshInterval)
	assert.Equal(t, 200.0, cfg.Guidance.RerouteDeviationMeters)
	assert.Equal(t, 50.0, cfg.Guidance.ArrivalThresholdMeters)
	assert.Equal(t, "/tmp/routes.json", cfg.Cache.Path)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
directions:
  osrm:
    profile: cycling
`)
	t.Setenv("NAV__DIRECTIONS__OSRM__PROFILE", "foot")
	t.Setenv("NAV__GUIDANCE__REFRESH_INTERVAL", "20s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "foot", cfg.Directions.OSRM.Profile)
	assert.Equal(t, 20*time.Second, cfg.Guidance.RefreshInterval)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown provider", content: "directions:\n  provider: mapquest\n"},
		{name: "google without key", content: "directions:\n  provider: google\n"},
		{name: "negative arrival threshold", content: "guidance:\n  arrival_threshold_meters: -1\n"},
		{name: "bad osrm url", content: "directions:\n  osrm:\n    base_url: not a url\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
