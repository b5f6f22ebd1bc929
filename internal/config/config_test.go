package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if diff := cmp.Diff(cfg, DefaultConfig()); diff != "" {
		t.Errorf("Load() on missing file (-got +want):\n%s", diff)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := st.Mode().Perm(); perm != 0o600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("second Load() = %v", err)
	}
	if diff := cmp.Diff(again, cfg); diff != "" {
		t.Errorf("round trip through file (-got +want):\n%s", diff)
	}
}

func TestLoadPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listen: ":9000"
panel:
  backend: rpio
  full_update_every: 30
  busy_timeout: 5s
  calibrate: false
agenda:
  timezone: Europe/Berlin
  ics:
    - id: work
      url: https://example.com/work.ics
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	want := DefaultConfig()
	want.Listen = ":9000"
	want.Panel.Backend = "rpio"
	want.Panel.FullUpdateEvery = 30
	want.Panel.BusyTimeout = 5 * time.Second
	want.Panel.Calibrate = false
	want.Agenda.Timezone = "Europe/Berlin"
	want.Agenda.ICS = []ICSConfig{{ID: "work", URL: "https://example.com/work.ics"}}
	if diff := cmp.Diff(cfg, want); diff != "" {
		t.Errorf("Load() (-got +want):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("panel: [not, a, map"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() of malformed YAML succeeded")
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{"refresh", func(c *Config) { c.RefreshCron = "every five minutes" }, "refresh"},
		{"otp clock low", func(c *Config) { c.Panel.OTPClockHz = 50_000 }, "otp_clock_hz"},
		{"otp clock high", func(c *Config) { c.Panel.OTPClockHz = 12_000_000 }, "otp_clock_hz"},
		{"write clock high", func(c *Config) { c.Panel.WriteClockHz = 25_000_000 }, "write_clock_hz"},
		{"cadence", func(c *Config) { c.Panel.FullUpdateEvery = 20_000 }, "full_update_every"},
		{"backend", func(c *Config) { c.Panel.Backend = "bitbang" }, "panel.backend"},
		{"rpio three wire", func(c *Config) { c.Panel.Backend = "rpio"; c.Panel.ThreeWire = true }, "three_wire"},
		{"border", func(c *Config) { c.Panel.BorderVariant = "triple" }, "border_variant"},
		{"temperature source", func(c *Config) { c.Temperature.Source = "weather" }, "temperature.source"},
		{"i2c address", func(c *Config) { c.Temperature.Source = "i2c"; c.Temperature.I2CAddr = 0x148 }, "i2c_addr"},
		{"image path", func(c *Config) { c.Source.Kind = "image" }, "image_path"},
		{"url", func(c *Config) { c.Source.Kind = "url" }, "source.url"},
		{"dither", func(c *Config) { c.Source.Dither = "ordered" }, "dither"},
		{"timezone", func(c *Config) { c.Agenda.Timezone = "Mars/Olympus" }, "timezone"},
		{"ics url", func(c *Config) { c.Agenda.ICS = []ICSConfig{{ID: "x"}} }, "ics[0]"},
		{"basic auth", func(c *Config) { c.BasicAuth = &BasicAuthConfig{Password: "p"} }, "basic_auth"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.modify(c)
			err := c.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() = %q, want mention of %q", err, tc.want)
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	c := &Config{Panel: PanelConfig{WriteClockHz: 2_000_000, BorderVariant: "doubled"}}
	c.Normalize()
	if c.Panel.WriteClockHz != 2_000_000 || c.Panel.BorderVariant != "doubled" {
		t.Errorf("Normalize() overwrote explicit values: %+v", c.Panel)
	}
	if c.Panel.OTPClockHz != 4_000_000 || c.Agenda.HorizonDays != 7 || c.Source.Kind != "agenda" {
		t.Errorf("Normalize() did not fill defaults: %+v", c)
	}
}
