package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the haphapd daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. The file is the primary surface; flags override.
type Config struct {
	Engine   EngineConfig     `yaml:"engine"`
	Effect   EffectParameters `yaml:"effect"`
	Playback PlaybackConfig   `yaml:"playback"`
	IPC      IPCConfig        `yaml:"ipc"`
	StateWS  StateWSConfig    `yaml:"state_ws"`
	Logging  LoggingConfig    `yaml:"logging"`
}

type EngineConfig struct {
	Backend string       `yaml:"backend"` // "evdev", "remote" or "null"
	Evdev   EvdevConfig  `yaml:"evdev"`
	Remote  RemoteConfig `yaml:"remote"`
	Null    Capabilities `yaml:"null"`
}

type EvdevConfig struct {
	Device string  `yaml:"device"`
	Gain   float64 `yaml:"gain"`

	// Continuous streams curve levels to the motor; otherwise curves are
	// quantized into stepped waveforms.
	Continuous bool `yaml:"continuous"`
}

type RemoteConfig struct {
	WsURL     string `yaml:"ws_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
	Attempts  int    `yaml:"attempts"`
}

type PlaybackConfig struct {
	StartDelayMS int `yaml:"start_delay_ms"`
	ControlHz    int `yaml:"control_hz"`
}

type IPCConfig struct {
	SocketPath     string `yaml:"socket_path"`
	ReplyTimeoutMS int    `yaml:"reply_timeout_ms"`
}

type StateWSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			Backend: "evdev",
			Evdev: EvdevConfig{
				Device:     "/dev/input/event0",
				Gain:       defaultEvdevGain,
				Continuous: true,
			},
			Remote: RemoteConfig{
				WsURL:     "ws://127.0.0.1:7878/actuator",
				TimeoutMS: defaultRemoteTimeoutMS,
				Attempts:  3,
			},
			Null: Capabilities{SupportsHaptics: true, SupportsContinuousCurves: true},
		},
		Effect: DefaultEffectParameters(),
		Playback: PlaybackConfig{
			StartDelayMS: defaultStartDelayMS,
			ControlHz:    defaultControlHz,
		},
		IPC: IPCConfig{
			SocketPath:     "/tmp/haphapd.sock",
			ReplyTimeoutMS: defaultIPCReplyTimeout,
		},
		StateWS: StateWSConfig{
			Enabled: false,
			Listen:  "127.0.0.1:3002",
			Path:    "/ws/state",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
// Unknown fields are rejected via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries flag values on top of a loaded config. A nil pointer
// means "not set"; a non-nil pointer is applied even if it holds a zero value.
type FlagOverrides struct {
	Backend     *string
	EvdevDevice *string
	RemoteWsURL *string

	StartDelayMS *int
	ControlHz    *int

	IPCSocketPath *string

	StateWSEnabled *bool
	StateWSListen  *string

	LogLevel  *string
	LogFormat *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Backend != nil {
		cfg.Engine.Backend = *o.Backend
	}
	if o.EvdevDevice != nil {
		cfg.Engine.Evdev.Device = *o.EvdevDevice
	}
	if o.RemoteWsURL != nil {
		cfg.Engine.Remote.WsURL = *o.RemoteWsURL
	}
	if o.StartDelayMS != nil {
		cfg.Playback.StartDelayMS = *o.StartDelayMS
	}
	if o.ControlHz != nil {
		cfg.Playback.ControlHz = *o.ControlHz
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StateWSEnabled != nil {
		cfg.StateWS.Enabled = *o.StateWSEnabled
	}
	if o.StateWSListen != nil {
		cfg.StateWS.Listen = *o.StateWSListen
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Logging.Format = *o.LogFormat
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	switch c.Engine.Backend {
	case "evdev":
		if c.Engine.Evdev.Device == "" {
			return errors.New("engine.evdev.device must not be empty")
		}
		if c.Engine.Evdev.Gain < 0 || c.Engine.Evdev.Gain > 1 {
			return errors.New("engine.evdev.gain must be between 0 and 1")
		}
	case "remote":
		if c.Engine.Remote.WsURL == "" {
			return errors.New("engine.remote.ws_url must not be empty")
		}
		if _, err := url.Parse(c.Engine.Remote.WsURL); err != nil {
			return fmt.Errorf("engine.remote.ws_url is invalid: %w", err)
		}
		if c.Engine.Remote.TimeoutMS <= 0 {
			return errors.New("engine.remote.timeout_ms must be > 0")
		}
		if c.Engine.Remote.Attempts <= 0 {
			return errors.New("engine.remote.attempts must be > 0")
		}
	case "null":
	default:
		return fmt.Errorf("engine.backend must be %q, %q or %q", "evdev", "remote", "null")
	}

	if err := c.Effect.Validate(); err != nil {
		return fmt.Errorf("effect: %w", err)
	}

	if c.Playback.StartDelayMS < 0 {
		return errors.New("playback.start_delay_ms must be >= 0")
	}
	if c.Playback.ControlHz <= 0 || c.Playback.ControlHz > 1000 {
		return errors.New("playback.control_hz must be between 1 and 1000")
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.IPC.ReplyTimeoutMS <= 0 {
		return errors.New("ipc.reply_timeout_ms must be > 0")
	}

	if c.StateWS.Enabled {
		if c.StateWS.Listen == "" {
			return errors.New("state_ws.enabled is true but state_ws.listen is empty")
		}
		if c.StateWS.Path == "" || c.StateWS.Path[0] != '/' {
			return errors.New("state_ws.path must start with /")
		}
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return errors.New(`logging.format must be "text" or "json"`)
	}

	return nil
}

// SessionConfig converts the playback section into reducer policy.
func (c *Config) SessionConfig() SessionConfig {
	return SessionConfig{StartDelay: time.Duration(c.Playback.StartDelayMS) * time.Millisecond}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
