package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// NOTE: Load creates the file with defaults on first run; the file is always
// written with 0600 permissions since it may carry basic auth credentials.

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("config: invalid")

// Frequency bounds in Hz.
const (
	MinClockHz      = 100_000
	MaxOTPClockHz   = 10_000_000
	MaxWriteClockHz = 20_000_000
	MaxFullEvery    = 10_000
)

// PanelConfig describes how the panel is wired and driven.
type PanelConfig struct {
	// Backend is "periph" (spidev through periph.io) or "rpio" (direct
	// register access through go-rpio).
	Backend string `yaml:"backend" json:"backend"`

	// SPIPort is the periph SPI port name, e.g. "/dev/spidev0.0" or "SPI0.0".
	// Empty selects the first available port.
	SPIPort string `yaml:"spi_port" json:"spi_port"`
	// ThreeWire reads back on the MOSI line (half duplex). Only the periph
	// backend supports it.
	ThreeWire bool `yaml:"three_wire" json:"three_wire"`

	// Pin names as understood by periph gpioreg ("GPIO25"). The rpio
	// backend uses the BCM number in the name.
	DCPin    string `yaml:"dc_pin" json:"dc_pin"`
	ResetPin string `yaml:"reset_pin" json:"reset_pin"`
	BusyPin  string `yaml:"busy_pin" json:"busy_pin"`
	CSPin    string `yaml:"cs_pin,omitempty" json:"cs_pin,omitempty"`

	OTPClockHz   int64 `yaml:"otp_clock_hz" json:"otp_clock_hz"`
	WriteClockHz int64 `yaml:"write_clock_hz" json:"write_clock_hz"`

	FullUpdateEvery uint32        `yaml:"full_update_every" json:"full_update_every"`
	BorderVariant   string        `yaml:"border_variant" json:"border_variant"`
	BusyTimeout     time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
	Calibrate       bool          `yaml:"calibrate" json:"calibrate"`
}

// TemperatureConfig selects where the ambient temperature comes from.
type TemperatureConfig struct {
	// Source is "static" or "i2c".
	Source  string  `yaml:"source" json:"source"`
	Celsius float64 `yaml:"celsius" json:"celsius"`
	I2CBus  string  `yaml:"i2c_bus" json:"i2c_bus"`
	I2CAddr uint16  `yaml:"i2c_addr" json:"i2c_addr"`
}

// SourceConfig selects what is rendered on the panel.
type SourceConfig struct {
	// Kind is "agenda", "image" or "url".
	Kind      string `yaml:"kind" json:"kind"`
	ImagePath string `yaml:"image_path,omitempty" json:"image_path,omitempty"`
	URL       string `yaml:"url,omitempty" json:"url,omitempty"`
	// Dither is "threshold" or "floyd-steinberg".
	Dither string `yaml:"dither" json:"dither"`
}

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	URL  string `yaml:"url" json:"url"`
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// AgendaConfig configures the agenda source.
type AgendaConfig struct {
	// Timezone is the IANA zone events are displayed in.
	Timezone    string      `yaml:"timezone" json:"timezone"`
	HorizonDays int         `yaml:"horizon_days" json:"horizon_days"`
	ICS         []ICSConfig `yaml:"ics" json:"ics"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address. Empty disables the API.
	Listen   string `yaml:"listen" json:"listen"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule string (e.g. "*/5 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// FontPath is an optional TTF file; the built-in bitmap font is used
	// when empty.
	FontPath string `yaml:"font_path,omitempty" json:"font_path,omitempty"`

	Panel       PanelConfig       `yaml:"panel" json:"panel"`
	Temperature TemperatureConfig `yaml:"temperature" json:"temperature"`
	Source      SourceConfig      `yaml:"source" json:"source"`
	Agenda      AgendaConfig      `yaml:"agenda" json:"agenda"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration for the reference
// panel on a Raspberry Pi HAT.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		LogLevel:    "info",
		RefreshCron: "*/5 * * * *",
		Panel: PanelConfig{
			Backend:         "periph",
			DCPin:           "GPIO25",
			ResetPin:        "GPIO17",
			BusyPin:         "GPIO24",
			OTPClockHz:      4_000_000,
			WriteClockHz:    10_000_000,
			FullUpdateEvery: 120,
			BorderVariant:   "single",
			BusyTimeout:     15 * time.Second,
			Calibrate:       true,
		},
		Temperature: TemperatureConfig{
			Source:  "static",
			Celsius: 25,
			I2CAddr: 0x48,
		},
		Source: SourceConfig{
			Kind:   "agenda",
			Dither: "threshold",
		},
		Agenda: AgendaConfig{
			Timezone:    "UTC",
			HorizonDays: 7,
			ICS:         []ICSConfig{},
		},
	}
}

// Normalize fills in missing/zero values with defaults so partially-filled
// configs still behave. Out of range values are left for Validate.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}

	p := &c.Panel
	if p.Backend == "" {
		p.Backend = def.Panel.Backend
	}
	if p.DCPin == "" {
		p.DCPin = def.Panel.DCPin
	}
	if p.ResetPin == "" {
		p.ResetPin = def.Panel.ResetPin
	}
	if p.BusyPin == "" {
		p.BusyPin = def.Panel.BusyPin
	}
	if p.OTPClockHz == 0 {
		p.OTPClockHz = def.Panel.OTPClockHz
	}
	if p.WriteClockHz == 0 {
		p.WriteClockHz = def.Panel.WriteClockHz
	}
	if p.FullUpdateEvery == 0 {
		p.FullUpdateEvery = def.Panel.FullUpdateEvery
	}
	if p.BorderVariant == "" {
		p.BorderVariant = def.Panel.BorderVariant
	}
	if p.BusyTimeout == 0 {
		p.BusyTimeout = def.Panel.BusyTimeout
	}

	if c.Temperature.Source == "" {
		c.Temperature.Source = def.Temperature.Source
	}
	if c.Temperature.I2CAddr == 0 {
		c.Temperature.I2CAddr = def.Temperature.I2CAddr
	}

	if c.Source.Kind == "" {
		c.Source.Kind = def.Source.Kind
	}
	if c.Source.Dither == "" {
		c.Source.Dither = def.Source.Dither
	}

	if c.Agenda.Timezone == "" {
		c.Agenda.Timezone = def.Agenda.Timezone
	}
	if c.Agenda.HorizonDays <= 0 {
		c.Agenda.HorizonDays = def.Agenda.HorizonDays
	}
	if c.Agenda.ICS == nil {
		c.Agenda.ICS = []ICSConfig{}
	}
}

// Validate reports every invalid field. The returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		bad("refresh %q: %v", c.RefreshCron, err)
	}

	p := c.Panel
	switch p.Backend {
	case "periph":
	case "rpio":
		// go-rpio only reads back on MISO.
		if p.ThreeWire {
			bad("panel.three_wire is not supported by the rpio backend")
		}
	default:
		bad("panel.backend %q (want periph or rpio)", p.Backend)
	}
	if p.OTPClockHz < MinClockHz || p.OTPClockHz > MaxOTPClockHz {
		bad("panel.otp_clock_hz %d out of range [%d, %d]", p.OTPClockHz, MinClockHz, MaxOTPClockHz)
	}
	if p.WriteClockHz < MinClockHz || p.WriteClockHz > MaxWriteClockHz {
		bad("panel.write_clock_hz %d out of range [%d, %d]", p.WriteClockHz, MinClockHz, MaxWriteClockHz)
	}
	if p.FullUpdateEvery < 1 || p.FullUpdateEvery > MaxFullEvery {
		bad("panel.full_update_every %d out of range [1, %d]", p.FullUpdateEvery, MaxFullEvery)
	}
	switch p.BorderVariant {
	case "single", "doubled":
	default:
		bad("panel.border_variant %q (want single or doubled)", p.BorderVariant)
	}
	if p.BusyTimeout < 0 {
		bad("panel.busy_timeout %s is negative", p.BusyTimeout)
	}

	switch c.Temperature.Source {
	case "static":
	case "i2c":
		if c.Temperature.I2CAddr > 0x7F {
			bad("temperature.i2c_addr %#x is not a 7 bit address", c.Temperature.I2CAddr)
		}
	default:
		bad("temperature.source %q (want static or i2c)", c.Temperature.Source)
	}

	switch c.Source.Kind {
	case "agenda":
	case "image":
		if c.Source.ImagePath == "" {
			bad("source.image_path is required for kind image")
		}
	case "url":
		if c.Source.URL == "" {
			bad("source.url is required for kind url")
		}
	default:
		bad("source.kind %q (want agenda, image or url)", c.Source.Kind)
	}
	switch c.Source.Dither {
	case "threshold", "floyd-steinberg":
	default:
		bad("source.dither %q (want threshold or floyd-steinberg)", c.Source.Dither)
	}

	if _, err := time.LoadLocation(c.Agenda.Timezone); err != nil {
		bad("agenda.timezone %q: %v", c.Agenda.Timezone, err)
	}
	for i, src := range c.Agenda.ICS {
		if src.URL == "" {
			bad("agenda.ics[%d].url is empty", i)
		}
	}

	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		bad("basic_auth.username is empty")
	}
	return errors.Join(errs...)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: write a default config with 0600 perms
//     (creating the parent directory) and return it.
//   - If the file exists: unmarshal the YAML and normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory with 0700.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".epd2271-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
