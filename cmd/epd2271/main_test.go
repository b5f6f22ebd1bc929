package main

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"

	"epd2271/internal/config"
	"epd2271/internal/epd"
	"epd2271/internal/frame"
	"epd2271/internal/render"
)

func TestPanelOpts(t *testing.T) {
	pc := config.DefaultConfig().Panel
	pc.WriteClockHz = 2_000_000
	pc.FullUpdateEvery = 10
	pc.BorderVariant = "doubled"
	pc.BusyTimeout = 3 * time.Second
	o, err := panelOpts(pc)
	if err != nil {
		t.Fatal(err)
	}
	if o.WriteClock != 2*physic.MegaHertz || o.OTPClock != 4*physic.MegaHertz {
		t.Errorf("clocks = %s, %s", o.OTPClock, o.WriteClock)
	}
	if o.FullUpdateEvery != 10 || o.Border != epd.BorderDoubled || o.BusyTimeout != 3*time.Second {
		t.Errorf("opts = %+v", o)
	}
	if o.Width != 176 || o.Height != 264 {
		t.Errorf("geometry %dx%d changed", o.Width, o.Height)
	}

	pc.BorderVariant = "triple"
	if _, err := panelOpts(pc); !errors.Is(err, epd.ErrConfiguration) {
		t.Errorf("panelOpts(triple) = %v, want ErrConfiguration", err)
	}
}

func TestBCMNumber(t *testing.T) {
	for _, tc := range []struct {
		name string
		want int
		ok   bool
	}{
		{"GPIO25", 25, true},
		{"gpio17", 17, true},
		{"24", 24, true},
		{"GPIO99", 0, false},
		{"P1_22", 0, false},
	} {
		n, err := bcmNumber(tc.name)
		if (err == nil) != tc.ok || n != tc.want {
			t.Errorf("bcmNumber(%q) = %d, %v", tc.name, n, err)
		}
	}
	if chipSelect("/dev/spidev0.1") != 1 || chipSelect("SPI0.0") != 0 || chipSelect("") != 0 {
		t.Error("chipSelect() mismatch")
	}
}

func TestRPIOBackendParsesPinsFirst(t *testing.T) {
	errNoGPIOMem := errors.New("no /dev/gpiomem")
	opened := 0
	openRPIO = func() error { opened++; return errNoGPIOMem }
	t.Cleanup(func() { openRPIO = epd.OpenRPIO })

	pc := config.DefaultConfig().Panel
	pc.Backend = "rpio"
	pc.CSPin = "P1_24"
	if _, _, err := rpioBackend(pc); !errors.Is(err, epd.ErrConfiguration) {
		t.Errorf("rpioBackend() with a bad CS pin = %v, want ErrConfiguration", err)
	}
	if opened != 0 {
		t.Errorf("registers mapped %d times before the pin names were checked", opened)
	}

	pc.CSPin = "GPIO8"
	if _, _, err := rpioBackend(pc); !errors.Is(err, errNoGPIOMem) {
		t.Errorf("rpioBackend() = %v, want the mapping error", err)
	}
	if opened != 1 {
		t.Errorf("registers mapped %d times, want 1", opened)
	}
}

func TestBuildSource(t *testing.T) {
	conf := config.DefaultConfig()
	conf.Agenda.ICS = []config.ICSConfig{{Name: "Work", URL: "https://example.com/a.ics"}}
	src, err := buildSource(conf, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	as, ok := src.(*render.AgendaSource)
	if !ok {
		t.Fatalf("buildSource() = %T, want agenda", src)
	}
	if got := as.Agenda.Feeds[0].ID; got != "Work" {
		t.Errorf("feed id = %q, want the name as fallback", got)
	}

	conf.Source.Kind = "image"
	conf.Source.ImagePath = "/tmp/x.png"
	if src, err := buildSource(conf, "", nil); err != nil || src == nil {
		t.Errorf("buildSource(image) = %v, %v", src, err)
	}
}

func TestDump(t *testing.T) {
	o := epd.E2271KS0C1
	logical := frame.New(264, 176)
	if err := dump(filepath.Join(t.TempDir(), "d"), logical, &o); err != nil {
		t.Fatal(err)
	}
	if err := dump(t.TempDir(), frame.New(10, 10), &o); err == nil {
		t.Error("dump() of a wrong geometry succeeded")
	}
}
