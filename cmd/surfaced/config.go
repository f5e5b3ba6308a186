package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"surfacekit/debounce"
	"surfacekit/pin"
)

// Config is the top-level YAML configuration for the surfaced daemon.
//
// Defaults and validation live here so the rest of the daemon can assume a
// well-formed config.
type Config struct {
	// GPIO driver: "periph" or "rpio". Pins named "evdev:DEVICE:CODE" are
	// read from a Linux input device instead.
	Driver string `yaml:"driver"`

	// Poll loop rate
	PollHz int `yaml:"poll_hz"`

	// Filter size used by elements that don't set their own
	FilterSize int `yaml:"filter_size"`

	Buttons  []ButtonConfig  `yaml:"buttons,omitempty"`
	Encoders []EncoderConfig `yaml:"encoders,omitempty"`

	WS      WSConfig      `yaml:"ws"`
	IPC     IPCConfig     `yaml:"ipc"`
	Logging LoggingConfig `yaml:"logging"`
}

type ButtonConfig struct {
	Name       string `yaml:"name"`
	Pin        string `yaml:"pin"`
	PullUp     bool   `yaml:"pull_up"`
	FilterSize int    `yaml:"filter_size,omitempty"` // 0 = use top-level filter_size
}

type EncoderConfig struct {
	Name       string `yaml:"name"`
	PinA       string `yaml:"pin_a"`
	PinB       string `yaml:"pin_b"`
	PullUp     bool   `yaml:"pull_up"`
	FilterSize int    `yaml:"filter_size,omitempty"`

	// Velocity buckets; empty disables scaling.
	Velocity []VelocityEntry `yaml:"velocity,omitempty"`
}

// VelocityEntry is one (threshold, scale) bucket. Ticks arriving less than
// ThresholdMS after the previous one are multiplied by Scale.
type VelocityEntry struct {
	ThresholdMS float64 `yaml:"threshold_ms"`
	Scale       float32 `yaml:"scale"`
}

// ThresholdMicros converts the threshold to clock units.
func (v VelocityEntry) ThresholdMicros() uint64 {
	return uint64(v.ThresholdMS * 1000)
}

type WSConfig struct {
	Listen string `yaml:"listen"` // empty disables the WebSocket server
	Path   string `yaml:"path"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"` // empty disables the control socket
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with every default filled in and no elements.
func DefaultConfig() Config {
	return Config{
		Driver:     defaultDriver,
		PollHz:     defaultPollHz,
		FilterSize: defaultFilterSize,
		WS: WSConfig{
			Listen: defaultWSListen,
			Path:   defaultWSPath,
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
// Unknown fields and trailing documents are rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds flag values that take precedence over the config file.
// A nil pointer means the flag was not set.
type FlagOverrides struct {
	Driver     *string
	PollHz     *int
	FilterSize *int
	WSListen   *string
	WSPath     *string
	SocketPath *string
	LogLevel   *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Driver != nil {
		cfg.Driver = *o.Driver
	}
	if o.PollHz != nil {
		cfg.PollHz = *o.PollHz
	}
	if o.FilterSize != nil {
		cfg.FilterSize = *o.FilterSize
	}
	if o.WSListen != nil {
		cfg.WS.Listen = *o.WSListen
	}
	if o.WSPath != nil {
		cfg.WS.Path = *o.WSPath
	}
	if o.SocketPath != nil {
		cfg.IPC.SocketPath = *o.SocketPath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// filterSize returns own if set, otherwise the top-level default.
func (c *Config) filterSize(own int) int {
	if own != 0 {
		return own
	}
	return c.FilterSize
}

func validFilterSize(n int) bool {
	return n >= debounce.MinSize && n <= debounce.MaxSize
}

// Validate checks config invariants and returns a user-friendly error.
// Call after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	switch c.Driver {
	case "periph", "rpio":
	default:
		return fmt.Errorf("driver must be %q or %q", "periph", "rpio")
	}
	if c.PollHz <= 0 || c.PollHz > maxPollHz {
		return fmt.Errorf("poll_hz must be between 1 and %d", maxPollHz)
	}
	if !validFilterSize(c.FilterSize) {
		return fmt.Errorf("filter_size must be between %d and %d", debounce.MinSize, debounce.MaxSize)
	}

	if len(c.Buttons) == 0 && len(c.Encoders) == 0 {
		return errors.New("at least one button or encoder must be configured")
	}

	names := make(map[string]struct{})
	claim := func(kind string, i int, name string) error {
		if name == "" {
			return fmt.Errorf("%s[%d].name must not be empty", kind, i)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("%s[%d].name %q is already used", kind, i, name)
		}
		names[name] = struct{}{}
		return nil
	}

	// Every element opens and configures its own lines, so no line may be
	// listed twice.
	pins := make(map[string]string)
	usePin := func(field, name string) error {
		key := c.pinKey(name)
		if prev, dup := pins[key]; dup {
			return fmt.Errorf("%s: pin %q is already used by %s", field, name, prev)
		}
		pins[key] = field
		return nil
	}

	for i, b := range c.Buttons {
		if err := claim("buttons", i, b.Name); err != nil {
			return err
		}
		if b.Pin == "" {
			return fmt.Errorf("buttons[%d].pin must not be empty", i)
		}
		if err := checkEvdevPin(b.Pin, b.PullUp); err != nil {
			return fmt.Errorf("buttons[%d].pin: %w", i, err)
		}
		if err := usePin(fmt.Sprintf("buttons[%d].pin", i), b.Pin); err != nil {
			return err
		}
		if !validFilterSize(c.filterSize(b.FilterSize)) {
			return fmt.Errorf("buttons[%d].filter_size must be between %d and %d", i, debounce.MinSize, debounce.MaxSize)
		}
	}

	for i, e := range c.Encoders {
		if err := claim("encoders", i, e.Name); err != nil {
			return err
		}
		if e.PinA == "" || e.PinB == "" {
			return fmt.Errorf("encoders[%d].pin_a and pin_b must not be empty", i)
		}
		if e.PinA == e.PinB {
			return fmt.Errorf("encoders[%d].pin_a and pin_b must differ", i)
		}
		for _, p := range []string{e.PinA, e.PinB} {
			if err := checkEvdevPin(p, e.PullUp); err != nil {
				return fmt.Errorf("encoders[%d]: %w", i, err)
			}
		}
		if err := usePin(fmt.Sprintf("encoders[%d].pin_a", i), e.PinA); err != nil {
			return err
		}
		if err := usePin(fmt.Sprintf("encoders[%d].pin_b", i), e.PinB); err != nil {
			return err
		}
		if !validFilterSize(c.filterSize(e.FilterSize)) {
			return fmt.Errorf("encoders[%d].filter_size must be between %d and %d", i, debounce.MinSize, debounce.MaxSize)
		}
		seen := make(map[uint64]struct{})
		for j, v := range e.Velocity {
			if !(v.ThresholdMS > 0 && v.ThresholdMS <= maxVelocityThresholdMS) {
				return fmt.Errorf("encoders[%d].velocity[%d].threshold_ms must be in (0, %d]", i, j, maxVelocityThresholdMS)
			}
			us := v.ThresholdMicros()
			if us == 0 {
				return fmt.Errorf("encoders[%d].velocity[%d].threshold_ms must be at least 0.001", i, j)
			}
			scale := float64(v.Scale)
			if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 || scale > maxVelocityScale {
				return fmt.Errorf("encoders[%d].velocity[%d].scale must be in (0, %d]", i, j, maxVelocityScale)
			}
			if _, dup := seen[us]; dup {
				return fmt.Errorf("encoders[%d].velocity[%d].threshold_ms is duplicated", i, j)
			}
			seen[us] = struct{}{}
		}
	}

	if c.WS.Listen != "" && (c.WS.Path == "" || c.WS.Path[0] != '/') {
		return errors.New("ws.path must start with /")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// pinKey identifies the physical line behind a pin name. The rpio driver
// accepts several spellings of one BCM number.
func (c *Config) pinKey(name string) string {
	if _, _, ok, _ := pin.ParseEvdev(name); ok || c.Driver != "rpio" {
		return name
	}
	if n, err := parseBCM(name); err == nil {
		return fmt.Sprintf("bcm:%d", n)
	}
	return name
}

// checkEvdevPin validates an "evdev:DEVICE:CODE" pin name. Keys report high
// while held, so pull-up polarity makes no sense for them.
func checkEvdevPin(name string, pullUp bool) error {
	_, _, ok, err := pin.ParseEvdev(name)
	if err != nil {
		return err
	}
	if ok && pullUp {
		return fmt.Errorf("%s: pull_up is not supported for evdev keys", name)
	}
	return nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
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
