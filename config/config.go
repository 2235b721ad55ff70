package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"streamhwd/proxy"
)

// Config represents the complete detector configuration
type Config struct {
	VoskRest VoskRestConfig      `yaml:"vosk-rest"`
	Proxy    map[string]string   `yaml:"proxy"`
	Audio    AudioConfig         `yaml:"audio"`
	Session  SessionConfig       `yaml:"session"`
	Models   map[string][]string `yaml:"models"`
	Log      LogConfig           `yaml:"log"`
	Metrics  MetricsConfig       `yaml:"metrics"`
	Save     SaveConfig          `yaml:"save"`

	raw map[string]any
}

// VoskRestConfig points at the recognition server
type VoskRestConfig struct {
	Server string `yaml:"server"`
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	Device     string `yaml:"device"`
}

// SessionConfig contains session timeouts and end-of-utterance detection
type SessionConfig struct {
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	JoinTimeout     time.Duration `yaml:"join_timeout"`
	EndSilence      time.Duration `yaml:"end_silence"`       // trailing silence that ends an utterance
	NoSpeechTimeout time.Duration `yaml:"no_speech_timeout"` // abandon when nobody speaks
	MaxDuration     time.Duration `yaml:"max_duration"`
}

type LogConfig struct {
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type SaveConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns a configuration usable against a local Vosk server.
func Default() *Config {
	return &Config{
		VoskRest: VoskRestConfig{Server: "ws://127.0.0.1:2700"},
		Audio:    AudioConfig{SampleRate: 16000},
		Session: SessionConfig{
			ConnectTimeout:  60 * time.Second,
			JoinTimeout:     10 * time.Second,
			EndSilence:      800 * time.Millisecond,
			NoSpeechTimeout: 5 * time.Second,
			MaxDuration:     30 * time.Second,
		},
		Models: map[string][]string{},
		Proxy:  map[string]string{},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config.raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// Get looks up a scalar value by section and key, the way the plugin host
// exposes its configuration. Typed fields win over the raw document so flag
// overrides are visible.
func (c *Config) Get(section, key string) (string, bool) {
	switch {
	case section == "vosk-rest" && key == "server":
		return c.VoskRest.Server, c.VoskRest.Server != ""
	case section == "proxy":
		v, ok := c.Proxy[key]
		return v, ok
	}

	sec, ok := c.raw[section].(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := sec[key]
	if !ok || v == nil {
		return "", false
	}
	switch v.(type) {
	case map[string]any, []any:
		return "", false
	}
	return fmt.Sprint(v), true
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.VoskRest.Validate(); err != nil {
		return fmt.Errorf("vosk-rest config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	for service, raw := range c.Proxy {
		if raw == "" || raw == proxy.Env {
			continue
		}
		if _, err := proxy.Parse(raw); err != nil {
			return fmt.Errorf("proxy config: %s: %w", service, err)
		}
	}
	return nil
}

// Validate validates the server address
func (v *VoskRestConfig) Validate() error {
	if v.Server == "" {
		return fmt.Errorf("server cannot be empty")
	}
	u, err := url.Parse(v.Server)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server must be a ws:// or wss:// url, got %q", v.Server)
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", a.SampleRate)
	}
	return nil
}

// Validate validates session timeouts
func (s *SessionConfig) Validate() error {
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", s.ConnectTimeout)
	}
	if s.JoinTimeout <= 0 {
		return fmt.Errorf("join_timeout must be positive, got %s", s.JoinTimeout)
	}
	if s.EndSilence < 0 || s.NoSpeechTimeout < 0 || s.MaxDuration < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	return nil
}
