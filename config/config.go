package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"xplanemap/xplane"
)

// DefaultPath is where the config file is looked up when no -config flag is given.
const DefaultPath = "config.toml"

// Config holds all application configuration
type Config struct {
	Listener ListenerConfig `toml:"listener"`
	Station  StationConfig  `toml:"station"`
	Map      MapConfig      `toml:"map"`
	Logging  LoggingConfig  `toml:"logging"`
	Foxglove FoxgloveConfig `toml:"foxglove"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Recorder RecorderConfig `toml:"recorder"`
	NMEA     NMEAConfig     `toml:"nmea"`
}

// ListenerConfig holds the broadcast socket settings
type ListenerConfig struct {
	Port        int    `toml:"port" env:"XPLANEMAP_PORT"`
	Network     string `toml:"network" env:"XPLANEMAP_NETWORK"`
	ReuseAddr   bool   `toml:"reuse_addr" env:"XPLANEMAP_REUSE_ADDR"`
	ReadBuffer  int    `toml:"read_buffer" env:"XPLANEMAP_READ_BUFFER"`
	StopOnEmpty bool   `toml:"stop_on_empty" env:"XPLANEMAP_STOP_ON_EMPTY"`
}

// StationConfig holds the user's home position, shown as "H" on the map
type StationConfig struct {
	GridSquare string `toml:"gridsquare" env:"XPLANEMAP_GRIDSQUARE"`
}

// MapConfig holds map-specific settings
type MapConfig struct {
	ShapePath   string  `toml:"shapefile" env:"XPLANEMAP_SHAPEFILE"`
	DefaultZoom float64 `toml:"defaultzoom" env:"XPLANEMAP_DEFAULT_ZOOM"`
	Follow      bool    `toml:"follow" env:"XPLANEMAP_FOLLOW"`
}

// LoggingConfig controls the slog logger
type LoggingConfig struct {
	Level  string `toml:"level" env:"XPLANEMAP_LOG_LEVEL"`
	Format string `toml:"format" env:"XPLANEMAP_LOG_FORMAT"`
	File   string `toml:"file" env:"XPLANEMAP_LOG_FILE"`
}

// FoxgloveConfig controls the Foxglove websocket bridge
type FoxgloveConfig struct {
	Enabled bool   `toml:"enabled" env:"XPLANEMAP_FOXGLOVE_ENABLED"`
	Addr    string `toml:"addr" env:"XPLANEMAP_FOXGLOVE_ADDR"`
	Name    string `toml:"name" env:"XPLANEMAP_FOXGLOVE_NAME"`
	Topic   string `toml:"topic" env:"XPLANEMAP_FOXGLOVE_TOPIC"`
	FrameID string `toml:"frame_id" env:"XPLANEMAP_FOXGLOVE_FRAME_ID"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" env:"XPLANEMAP_METRICS_ENABLED"`
	Addr    string `toml:"addr" env:"XPLANEMAP_METRICS_ADDR"`
}

// RecorderConfig controls the JSONL track recorder
type RecorderConfig struct {
	Enabled bool   `toml:"enabled" env:"XPLANEMAP_RECORDER_ENABLED"`
	Path    string `toml:"path" env:"XPLANEMAP_RECORDER_PATH"`
}

// NMEAConfig controls the NMEA relay. Device is a serial port path
// (/dev/ttyUSB0, COM3) or a host:port for TCP.
type NMEAConfig struct {
	Enabled  bool   `toml:"enabled" env:"XPLANEMAP_NMEA_ENABLED"`
	Device   string `toml:"device" env:"XPLANEMAP_NMEA_DEVICE"`
	BaudRate int    `toml:"baud" env:"XPLANEMAP_NMEA_BAUD"`
	Talker   string `toml:"talker" env:"XPLANEMAP_NMEA_TALKER"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Listener: ListenerConfig{
			Port:    xplane.DefaultPort,
			Network: "udp4",
		},
		Map: MapConfig{
			DefaultZoom: 1.0,
			Follow:      true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "xplanemap.log",
		},
		Foxglove: FoxgloveConfig{
			Addr:    "127.0.0.1:8765",
			Name:    "xplanemap",
			Topic:   "/xplane/gps",
			FrameID: "xplane",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9102",
		},
		Recorder: RecorderConfig{
			Path: "tracks.jsonl",
		},
		NMEA: NMEAConfig{
			BaudRate: 4800,
			Talker:   "GP",
		},
	}
}

// LoadConfig reads the configuration from path on top of Default. A missing
// file is not an error. A .env file next to the config is loaded first, and
// XPLANEMAP_* environment variables override file values.
func LoadConfig(path string) (Config, error) {
	conf := Default()

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return conf, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return conf, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &conf); err != nil {
			return conf, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&conf); err != nil {
		return conf, fmt.Errorf("failed to read environment overrides: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return conf, fmt.Errorf("config validation failed: %w", err)
	}
	return conf, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Listener.Validate(); err != nil {
		return fmt.Errorf("listener config: %w", err)
	}
	if err := c.Map.Validate(); err != nil {
		return fmt.Errorf("map config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := c.Foxglove.Validate(); err != nil {
		return fmt.Errorf("foxglove config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.Recorder.Validate(); err != nil {
		return fmt.Errorf("recorder config: %w", err)
	}
	if err := c.NMEA.Validate(); err != nil {
		return fmt.Errorf("nmea config: %w", err)
	}
	return nil
}

func (l *ListenerConfig) Validate() error {
	if l.Port < 0 || l.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", l.Port)
	}
	switch l.Network {
	case "udp", "udp4", "udp6":
	default:
		return fmt.Errorf("network must be one of [udp, udp4, udp6], got '%s'", l.Network)
	}
	if l.ReadBuffer < 0 {
		return fmt.Errorf("read_buffer cannot be negative, got %d", l.ReadBuffer)
	}
	return nil
}

func (m *MapConfig) Validate() error {
	if m.DefaultZoom < 1.0 {
		return fmt.Errorf("defaultzoom must be at least 1, got %f", m.DefaultZoom)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	return nil
}

func (f *FoxgloveConfig) Validate() error {
	if !f.Enabled {
		return nil
	}
	if f.Addr == "" {
		return fmt.Errorf("addr cannot be empty when the bridge is enabled")
	}
	if f.Topic == "" {
		return fmt.Errorf("topic cannot be empty when the bridge is enabled")
	}
	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Addr == "" {
		return fmt.Errorf("addr cannot be empty when metrics are enabled")
	}
	return nil
}

func (r *RecorderConfig) Validate() error {
	if r.Enabled && r.Path == "" {
		return fmt.Errorf("path cannot be empty when the recorder is enabled")
	}
	return nil
}

func (n *NMEAConfig) Validate() error {
	if !n.Enabled {
		return nil
	}
	if n.Device == "" {
		return fmt.Errorf("device cannot be empty when the relay is enabled")
	}
	if n.BaudRate <= 0 {
		return fmt.Errorf("baud must be positive, got %d", n.BaudRate)
	}
	if len(n.Talker) != 2 {
		return fmt.Errorf("talker must be two characters, got '%s'", n.Talker)
	}
	return nil
}
