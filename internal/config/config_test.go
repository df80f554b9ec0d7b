package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 85, cfg.Resolver.StructuredThreshold)
	require.Equal(t, 75, cfg.Resolver.URLPatternThreshold)
	require.Equal(t, 60, cfg.Resolver.HeuristicThreshold)
	require.Equal(t, 30, cfg.Resolver.BestAvailableFloor)
	require.Equal(t, 5, cfg.Review.VolumeThreshold)
	require.Equal(t, 30, cfg.Review.HighBelow)
	require.Equal(t, 60, cfg.Review.LowAtOrAbove)
	require.Equal(t, 20*time.Second, cfg.FetchTimeout())
	require.Equal(t, time.Hour, cfg.CacheTTL())
	require.False(t, cfg.Headless.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
resolver:
  structured_threshold: 90
cache:
  ttl_minutes: 15
videos:
  - url: https://youtu.be/dQw4w9WgXcQ
    title: Launch recap
    category: talks
    featured: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 90, cfg.Resolver.StructuredThreshold)
	require.Equal(t, 15*time.Minute, cfg.CacheTTL())
	require.Len(t, cfg.Videos, 1)
	require.Equal(t, "Launch recap", cfg.Videos[0].Title)
	require.True(t, cfg.Videos[0].Featured)
	// Unset sections keep their defaults.
	require.Equal(t, 75, cfg.Resolver.URLPatternThreshold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidThreshold(t *testing.T) {
	path := writeConfig(t, `
resolver:
  structured_threshold: 150
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "structured_threshold")
}

func TestValidate_AuthRequiresKey(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Auth.Enabled = true
	require.Error(t, cfg.Validate())

	cfg.Auth.APIKey = "sesame"
	require.NoError(t, cfg.Validate())
}

func TestValidate_ReviewBandsOrdered(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Review.HighBelow = 70
	cfg.Review.LowAtOrAbove = 60
	require.Error(t, cfg.Validate())
}

func TestValidate_HeadlessParallelism(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Headless.Enabled = true
	cfg.Headless.MaxParallel = 0
	require.Error(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("METARESOLVER_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
}
