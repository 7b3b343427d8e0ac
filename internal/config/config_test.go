package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate clears every variable Load looks at
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILEPATH", "SERVER_HOST", "SERVER_PORT", "REDIS_URL",
		"MQTT_BROKER", "VIDCONTRAST_DECODER", "VIDCONTRAST_CONTRAST",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ffmpeg", cfg.Decoder.Backend)
	assert.Equal(t, "stddev", cfg.Metrics.Contrast)
	assert.Equal(t, 80, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Watcher.PollInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "vidcontrast.yaml")
	data := []byte(`
decoder:
  backend: mpeg
  threads: 2
metrics:
  contrast: local
server:
  port: 8080
watcher:
  poll_interval: 250ms
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mpeg", cfg.Decoder.Backend)
	assert.Equal(t, 2, cfg.Decoder.Threads)
	assert.Equal(t, "local", cfg.Metrics.Contrast)
	assert.Equal(t, 250*time.Millisecond, cfg.Watcher.PollInterval)
	assert.Equal(t, 9090, cfg.Server.Port, "env overrides file")
	assert.Equal(t, "redis://cache:6379/2", cfg.Watcher.RedisURL)
	assert.Equal(t, path, cfg.Server.ConfigPath)
	// untouched sections keep defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Chdir(t.TempDir())

	env := map[string]string{
		"SERVER_HOST":          "127.0.0.1",
		"SERVER_PORT":          "8443",
		"REDIS_URL":            "redis://queue:6379/1",
		"MQTT_BROKER":          "tcp://broker:1883",
		"VIDCONTRAST_DECODER":  "mpeg",
		"VIDCONTRAST_CONTRAST": "local",
	}
	for key, value := range env {
		t.Setenv(key, value)
	}

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8443, cfg.Server.Port)
	assert.Equal(t, "redis://queue:6379/1", cfg.Watcher.RedisURL)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "mpeg", cfg.Decoder.Backend)
	assert.Equal(t, "local", cfg.Metrics.Contrast)

	t.Setenv("SERVER_PORT", "eighty")
	_, err = Load("")
	assert.ErrorContains(t, err, "SERVER_PORT")
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("metrics:\n  contrast: local\n"), 0644))
	t.Setenv("CONFIG_FILEPATH", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Metrics.Contrast)
	assert.Equal(t, path, cfg.Server.ConfigPath)
}

func TestLoadMissingFile(t *testing.T) {
	isolate(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadInvalid(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0644))

	_, err := Load(path)
	assert.Error(t, err)

	t.Setenv("SERVER_PORT", "eighty")
	_, err = Load("")
	assert.Error(t, err)
}

func TestSaveAndParse(t *testing.T) {
	cfg := Default()
	cfg.Metrics.Contrast = "local"
	cfg.Watcher.PollInterval = 2 * time.Second

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Decoder.Backend = "vlc" }},
		{"threads", func(c *Config) { c.Decoder.Threads = -1 }},
		{"contrast", func(c *Config) { c.Metrics.Contrast = "rms" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"poll interval", func(c *Config) { c.Watcher.PollInterval = 0 }},
		{"same keys", func(c *Config) { c.Watcher.ProcessingKey = c.Watcher.QueueKey }},
		{"qos", func(c *Config) { c.MQTT.QoS = 3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	cp := cfg.Clone()
	cp.Server.Port = 1234
	assert.Equal(t, 80, cfg.Server.Port)
}

func TestContextCarrier(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 8000

	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Equal(t, 80, FromContext(context.Background()).Server.Port)
}
