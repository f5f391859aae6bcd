package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/imuble/internal/advertising"
	"github.com/srg/imuble/internal/gatt"
)

// Radio backends.
const (
	RadioGoBLE    = "go-ble"
	RadioLoopback = "loopback"
)

// Radios lists every supported radio backend.
func Radios() []string {
	return []string{RadioGoBLE, RadioLoopback}
}

// Sensor sources.
const (
	SensorSynthetic = "synthetic"
	SensorFixed     = "fixed"
	SensorScript    = "script"
)

// Sensors lists every supported sensor source.
func Sensors() []string {
	return []string{SensorSynthetic, SensorFixed, SensorScript}
}

// Display modes.
const (
	DisplayPTY    = "pty"
	DisplayStdout = "stdout"
	DisplayNone   = "none"
)

// Displays lists every supported display mode.
func Displays() []string {
	return []string{DisplayPTY, DisplayStdout, DisplayNone}
}

// Config holds application configuration. Zero-valued fields are filled from
// the default tags.
type Config struct {
	LogLevel            string        `yaml:"log_level" default:"info"`
	DeviceName          string        `yaml:"device_name" default:"mpy-m5stack"`
	Appearance          uint16        `yaml:"appearance" default:"1088"`
	AdvertisingInterval time.Duration `yaml:"advertising_interval" default:"500ms"`
	HCIDevice           int           `yaml:"hci_device" default:"0"`
	Radio               string        `yaml:"radio" default:"go-ble"`
	DemoCentral         bool          `yaml:"demo_central"`
	Sensor              string        `yaml:"sensor" default:"synthetic"`
	SensorScript        string        `yaml:"sensor_script"`
	Display             string        `yaml:"display" default:"pty"`
	TickYield           time.Duration `yaml:"tick_yield" default:"1ms"`
	Notify              bool          `yaml:"notify" default:"true"`
	KeyHold             time.Duration `yaml:"key_hold" default:"250ms"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults and validates the result. An
// empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := cfg.Decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays YAML from r onto c. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Encode writes c as YAML.
func (c *Config) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// Validate checks enum values, intervals and that the device name fits the
// advertising payload.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.DeviceName == "" {
		errs = append(errs, errors.New("device_name: must not be empty"))
	} else if _, err := advertising.BuildPayload(c.DeviceName, gatt.AdvertisedUUIDs(), c.Appearance); err != nil {
		errs = append(errs, fmt.Errorf("device_name %q: %w", c.DeviceName, err))
	}
	if c.AdvertisingInterval <= 0 {
		errs = append(errs, fmt.Errorf("advertising_interval: must be positive, got %s", c.AdvertisingInterval))
	}
	if c.HCIDevice < 0 {
		errs = append(errs, fmt.Errorf("hci_device: must not be negative, got %d", c.HCIDevice))
	}
	if err := oneOf("radio", c.Radio, Radios()); err != nil {
		errs = append(errs, err)
	}
	if c.DemoCentral && c.Radio != RadioLoopback {
		errs = append(errs, fmt.Errorf("demo_central: requires radio %q", RadioLoopback))
	}
	if err := oneOf("sensor", c.Sensor, Sensors()); err != nil {
		errs = append(errs, err)
	}
	if c.Sensor == SensorScript && c.SensorScript == "" {
		errs = append(errs, errors.New("sensor_script: required when sensor is script"))
	}
	if err := oneOf("display", c.Display, Displays()); err != nil {
		errs = append(errs, err)
	}
	if c.TickYield < 0 {
		errs = append(errs, fmt.Errorf("tick_yield: must not be negative, got %s", c.TickYield))
	}
	if c.KeyHold <= 0 {
		errs = append(errs, fmt.Errorf("key_hold: must be positive, got %s", c.KeyHold))
	}

	return errors.Join(errs...)
}

func oneOf(field, value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s: unknown value %q (expected one of %s)", field, value, strings.Join(allowed, ", "))
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
