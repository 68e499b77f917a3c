package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := ParseConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Proxy.ReplyTimeout)
	assert.Equal(t, []string{"openfreemap", "maps"}, cfg.Proxy.ExcludedHosts)
	assert.Equal(t, 1000, cfg.Template.TileSize)
	assert.Equal(t, 3, cfg.Template.PixelGridSize)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Messaging.Driver)
	assert.Equal(t, 50, cfg.Status.History)
	assert.True(t, cfg.Bridge.Embedded)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("PROXY_REPLY_TIMEOUT", "250ms")
	t.Setenv("STORAGE_DRIVER", "redis")

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := ParseConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Proxy.ReplyTimeout)
	assert.Equal(t, "redis", cfg.Storage.Driver)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("OVERLAY_TEST_KEY", "set")
	assert.Equal(t, "set", GetEnv("OVERLAY_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", GetEnv("OVERLAY_TEST_MISSING", "fallback"))
}

func TestLoadConfigFromConfigPath(t *testing.T) {
	dir := t.TempDir()
	yaml := "server:\n  port: \"9090\"\nproxy:\n  reply_timeout: 3s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("CONFIG_PATH", dir)

	v, err := LoadConfig()
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Proxy.ReplyTimeout)
	assert.Equal(t, "8081", cfg.Bridge.Port)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", t.TempDir())

	v, err := LoadConfig()
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
}
