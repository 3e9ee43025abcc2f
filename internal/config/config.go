// Package config loads process settings from an optional YAML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode selects which uplink protocol the process serves.
type Mode string

const (
	ModeMixed  Mode = "mixed"
	ModeStereo Mode = "stereo"
	ModeAudio  Mode = "audio"
)

// Transport selects the carrier for every enabled uplink.
type Transport string

const (
	TransportTCP  Transport = "tcp"
	TransportSRT  Transport = "srt"
	TransportQUIC Transport = "quic"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete process configuration.
type Config struct {
	Modes          []Mode        `yaml:"modes"`
	Transport      Transport     `yaml:"transport"`
	MixedAddr      string        `yaml:"mixed_addr"`
	StereoAddr     string        `yaml:"stereo_addr"`
	AudioAddr      string        `yaml:"audio_addr"`
	APIAddr        string        `yaml:"api_addr"`
	DataDir        string        `yaml:"data_dir"`
	CalibrationDir string        `yaml:"calibration_dir"`
	Debug          bool          `yaml:"debug"`
	Persist        PersistConfig `yaml:"persist"`
	Stereo         StereoConfig  `yaml:"stereo"`
	Audio          AudioConfig   `yaml:"audio"`
	MQTT           MQTTConfig    `yaml:"mqtt"`
}

// PersistConfig sizes the background save pool.
type PersistConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// StereoConfig controls the stereo composite handling.
type StereoConfig struct {
	SplitX     int `yaml:"split_x"`
	PollMillis int `yaml:"poll_ms"`
}

// AudioConfig controls local playback.
type AudioConfig struct {
	Device     bool `yaml:"device"`
	MaxSeconds int  `yaml:"max_seconds"` // playback buffer cap
}

// MQTTConfig holds artifact notification settings. An empty broker
// disables notifications.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// Default returns the built-in configuration: mixed mode over TCP.
func Default() *Config {
	return &Config{
		Modes:          []Mode{ModeMixed},
		Transport:      TransportTCP,
		MixedAddr:      "0.0.0.0:5001",
		StereoAddr:     "0.0.0.0:5002",
		AudioAddr:      "0.0.0.0:5001",
		APIAddr:        ":8088",
		DataDir:        "received_data",
		CalibrationDir: "yaml",
		Persist:        PersistConfig{Workers: 2, QueueSize: 32},
		Stereo:         StereoConfig{SplitX: 1280, PollMillis: 30},
		Audio:          AudioConfig{Device: true, MaxSeconds: 30},
		MQTT:           MQTTConfig{TopicPrefix: "rovlink"},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds the configuration from defaults, the file named by
// ROVLINK_CONFIG when set, and environment overrides.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path := getenv("ROVLINK_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	envOr := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	if v := getenv("MODE"); v != "" {
		c.Modes = nil
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				c.Modes = append(c.Modes, Mode(strings.ToLower(m)))
			}
		}
	}
	c.Transport = Transport(strings.ToLower(envOr("TRANSPORT", string(c.Transport))))
	c.MixedAddr = envOr("MIXED_ADDR", c.MixedAddr)
	c.StereoAddr = envOr("STEREO_ADDR", c.StereoAddr)
	c.AudioAddr = envOr("AUDIO_ADDR", c.AudioAddr)
	c.APIAddr = envOr("API_ADDR", c.APIAddr)
	c.DataDir = envOr("DATA_DIR", c.DataDir)
	c.CalibrationDir = envOr("CALIBRATION_DIR", c.CalibrationDir)
	c.MQTT.Broker = envOr("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.TopicPrefix = envOr("MQTT_TOPIC_PREFIX", c.MQTT.TopicPrefix)
	if getenv("DEBUG") != "" {
		c.Debug = true
	}

	switch v := strings.ToLower(getenv("AUDIO_DEVICE")); v {
	case "":
	case "on", "true", "1":
		c.Audio.Device = true
	case "off", "false", "0":
		c.Audio.Device = false
	default:
		return fmt.Errorf("%w: AUDIO_DEVICE %q: want on or off", ErrInvalid, v)
	}

	if v := getenv("STEREO_SPLIT_X"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: STEREO_SPLIT_X: %w", ErrInvalid, err)
		}
		c.Stereo.SplitX = n
	}
	return nil
}

// Enabled reports whether m is among the configured modes.
func (c *Config) Enabled(m Mode) bool {
	return slices.Contains(c.Modes, m)
}

// Validate fills unset sizes and rejects unusable combinations.
func (c *Config) Validate() error {
	d := Default()
	if len(c.Modes) == 0 {
		c.Modes = d.Modes
	}
	seen := make(map[Mode]bool, len(c.Modes))
	for _, m := range c.Modes {
		switch m {
		case ModeMixed, ModeStereo, ModeAudio:
		default:
			return fmt.Errorf("%w: unknown mode %q", ErrInvalid, m)
		}
		if seen[m] {
			return fmt.Errorf("%w: mode %q listed twice", ErrInvalid, m)
		}
		seen[m] = true
	}
	switch c.Transport {
	case TransportTCP, TransportSRT, TransportQUIC:
	case "":
		c.Transport = d.Transport
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalid, c.Transport)
	}
	if seen[ModeMixed] && seen[ModeAudio] && c.MixedAddr == c.AudioAddr {
		return fmt.Errorf("%w: mixed and audio both bind %s", ErrInvalid, c.MixedAddr)
	}
	if seen[ModeStereo] && seen[ModeMixed] && c.StereoAddr == c.MixedAddr {
		return fmt.Errorf("%w: mixed and stereo both bind %s", ErrInvalid, c.MixedAddr)
	}
	if seen[ModeStereo] && seen[ModeAudio] && c.StereoAddr == c.AudioAddr {
		return fmt.Errorf("%w: stereo and audio both bind %s", ErrInvalid, c.AudioAddr)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalid)
	}
	if c.Persist.Workers <= 0 {
		c.Persist.Workers = d.Persist.Workers
	}
	if c.Persist.QueueSize <= 0 {
		c.Persist.QueueSize = d.Persist.QueueSize
	}
	if c.Stereo.SplitX <= 0 {
		c.Stereo.SplitX = d.Stereo.SplitX
	}
	if c.Stereo.PollMillis <= 0 {
		c.Stereo.PollMillis = d.Stereo.PollMillis
	}
	if c.Audio.MaxSeconds <= 0 {
		c.Audio.MaxSeconds = d.Audio.MaxSeconds
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt qos %d", ErrInvalid, c.MQTT.QoS)
	}
	return nil
}
