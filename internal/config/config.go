package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	TempDir string    `yaml:"temp_dir"`
	Log     LogConfig `yaml:"log"`

	// Frame decoding
	Decoder DecoderConfig `yaml:"decoder"`

	// Metric computation
	Metrics MetricsConfig `yaml:"metrics"`

	// REST surface
	Server ServerConfig `yaml:"server"`

	// Bucket watcher
	Watcher WatcherConfig `yaml:"watcher"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DecoderConfig struct {
	Backend     string `yaml:"backend"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
	Threads     int    `yaml:"threads"`
}

type MetricsConfig struct {
	Contrast string `yaml:"contrast"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	ConfigPath string `yaml:"config_path"`
}

type WatcherConfig struct {
	RedisURL      string        `yaml:"redis_url"`
	QueueKey      string        `yaml:"queue_key"`
	ProcessingKey string        `yaml:"processing_key"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	ResultExt     string        `yaml:"result_ext"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// Load reads configuration from file or returns defaults. A .env file in the
// working directory is loaded first; environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	// missing .env is normal outside development
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_FILEPATH")
	}
	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			cfg.Server.ConfigPath = path
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML on top of the defaults
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, 0644)
}

// Clone returns a copy that can be modified independently
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Validate checks values that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	var errs []error

	switch c.Decoder.Backend {
	case "ffmpeg", "mpeg", "opencv":
	default:
		errs = append(errs, fmt.Errorf("decoder.backend: unknown backend %q", c.Decoder.Backend))
	}
	if c.Decoder.Threads < 0 {
		errs = append(errs, errors.New("decoder.threads: must not be negative"))
	}

	switch c.Metrics.Contrast {
	case "stddev", "local":
	default:
		errs = append(errs, fmt.Errorf("metrics.contrast: unknown strategy %q", c.Metrics.Contrast))
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be console or json, got %q", c.Log.Format))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}

	if c.Watcher.PollInterval <= 0 {
		errs = append(errs, errors.New("watcher.poll_interval: must be positive"))
	}
	if c.Watcher.QueueKey == "" || c.Watcher.ProcessingKey == "" {
		errs = append(errs, errors.New("watcher: queue_key and processing_key are required"))
	}
	if c.Watcher.QueueKey != "" && c.Watcher.QueueKey == c.Watcher.ProcessingKey {
		errs = append(errs, errors.New("watcher: queue_key and processing_key must differ"))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos: %d out of range", c.MQTT.QoS))
	}

	return errors.Join(errs...)
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString(&c.Server.Host, "SERVER_HOST")
	setString(&c.Server.ConfigPath, "CONFIG_FILEPATH")
	setString(&c.Watcher.RedisURL, "REDIS_URL")
	setString(&c.MQTT.Broker, "MQTT_BROKER")
	setString(&c.Decoder.Backend, "VIDCONTRAST_DECODER")
	setString(&c.Metrics.Contrast, "VIDCONTRAST_CONTRAST")

	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}

	return nil
}

func defaultConfig() *Config {
	return &Config{
		TempDir: os.TempDir(),
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Decoder: DecoderConfig{
			Backend:     "ffmpeg",
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			Threads:     0,
		},
		Metrics: MetricsConfig{
			Contrast: "stddev",
		},
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       80,
			ConfigPath: "./vidcontrast.yaml",
		},
		Watcher: WatcherConfig{
			RedisURL:      "redis://localhost:6379/0",
			QueueKey:      "vidcontrast:objects",
			ProcessingKey: "vidcontrast:processing",
			PollInterval:  5 * time.Second,
			ResultExt:     ".srt",
		},
		MQTT: MQTTConfig{
			ClientID: "vidcontrast",
			Topic:    "vidcontrast",
			QoS:      1,
		},
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

func findConfigFile() string {
	candidates := []string{
		"./vidcontrast.yaml",
		"./config.yaml",
		filepath.Join(os.Getenv("HOME"), ".vidcontrast", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
