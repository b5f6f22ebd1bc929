package main

import (
	"fmt"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"epd2271/internal/config"
	"epd2271/internal/epd"
	appLog "epd2271/internal/log"
	"epd2271/internal/thermo"
)

// panelOpts maps the panel section of the config onto the reference panel.
func panelOpts(pc config.PanelConfig) (epd.Opts, error) {
	o := epd.E2271KS0C1
	border, err := epd.ParseBorderVariant(pc.BorderVariant)
	if err != nil {
		return o, err
	}
	o.Border = border
	o.OTPClock = physic.Frequency(pc.OTPClockHz) * physic.Hertz
	o.WriteClock = physic.Frequency(pc.WriteClockHz) * physic.Hertz
	o.FullUpdateEvery = pc.FullUpdateEvery
	if pc.BusyTimeout > 0 {
		o.BusyTimeout = pc.BusyTimeout
	}
	o.Calibrate = pc.Calibrate
	return o, nil
}

// openPanel opens the bus and pins of the configured backend and runs Setup.
// The returned close func releases everything that was opened.
func openPanel(pc config.PanelConfig) (*epd.Dev, func(), error) {
	opts, err := panelOpts(pc)
	if err != nil {
		return nil, nil, err
	}

	var (
		bus     epd.Bus
		pins    epd.Pins
		cleanup = func() {}
	)
	switch pc.Backend {
	case "rpio":
		bus, pins, err = rpioBackend(pc)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() {
			if err := epd.CloseRPIO(); err != nil {
				appLog.Error("rpio close failed", err)
			}
		}
	default:
		if _, err := host.Init(); err != nil {
			return nil, nil, fmt.Errorf("periph host init: %w", err)
		}
		bus, pins, err = periphBackend(pc)
		if err != nil {
			return nil, nil, err
		}
	}

	dev, err := epd.New(bus, pins, &opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := dev.Setup(); err != nil {
		cleanup()
		return nil, nil, err
	}
	closeFn := func() {
		if err := dev.Close(); err != nil {
			appLog.Error("panel close failed", err)
		}
		cleanup()
	}
	return dev, closeFn, nil
}

func periphBackend(pc config.PanelConfig) (epd.Bus, epd.Pins, error) {
	var pins epd.Pins
	lookup := func(name, role string) (gpio.PinIO, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %s pin %q not found", epd.ErrConfiguration, role, name)
		}
		return p, nil
	}
	dc, err := lookup(pc.DCPin, "DC")
	if err != nil {
		return nil, pins, err
	}
	reset, err := lookup(pc.ResetPin, "reset")
	if err != nil {
		return nil, pins, err
	}
	busy, err := lookup(pc.BusyPin, "busy")
	if err != nil {
		return nil, pins, err
	}
	if err := busy.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, pins, fmt.Errorf("busy pin: %w", err)
	}
	pins = epd.Pins{DC: dc, Reset: reset, Busy: busy}
	if pc.CSPin != "" {
		cs, err := lookup(pc.CSPin, "CS")
		if err != nil {
			return nil, pins, err
		}
		pins.CS = cs
	}
	return epd.NewPeriphBus(pc.SPIPort, pc.ThreeWire), pins, nil
}

// openRPIO maps the GPIO registers; replaced in tests.
var openRPIO = epd.OpenRPIO

func rpioBackend(pc config.PanelConfig) (epd.Bus, epd.Pins, error) {
	var pins epd.Pins
	names := []string{pc.DCPin, pc.ResetPin, pc.BusyPin}
	if pc.CSPin != "" {
		names = append(names, pc.CSPin)
	}
	nums := make([]int, len(names))
	for i, name := range names {
		n, err := bcmNumber(name)
		if err != nil {
			return nil, pins, err
		}
		nums[i] = n
	}
	// Nothing may fail after the mapping is opened; openPanel only closes it
	// once the backend is returned.
	if err := openRPIO(); err != nil {
		return nil, pins, err
	}
	pins = epd.Pins{
		DC:    epd.NewRPIOOutput(nums[0]),
		Reset: epd.NewRPIOOutput(nums[1]),
		Busy:  epd.NewRPIOInput(nums[2]),
	}
	if len(nums) == 4 {
		pins.CS = epd.NewRPIOOutput(nums[3])
	}
	return epd.NewRPIOBus(chipSelect(pc.SPIPort)), pins, nil
}

// bcmNumber extracts the BCM number from a pin name like "GPIO25" or "25".
func bcmNumber(name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(name), "GPIO"))
	if err != nil || n < 0 || n > 53 {
		return 0, fmt.Errorf("%w: pin %q is not a BCM GPIO name", epd.ErrConfiguration, name)
	}
	return n, nil
}

// chipSelect returns the SPI0 chip select of a port name like "SPI0.1" or
// "/dev/spidev0.1".
func chipSelect(port string) uint8 {
	if strings.HasSuffix(port, ".1") {
		return 1
	}
	return 0
}

// openThermo returns the configured temperature reader and its close func.
func openThermo(tc config.TemperatureConfig) (thermo.Reader, func(), error) {
	if tc.Source != "i2c" {
		return thermo.Static{Celsius: tc.Celsius}, func() {}, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	b, err := thermo.Open(tc.I2CBus, tc.I2CAddr)
	if err != nil {
		return nil, nil, err
	}
	return b, func() {
		if err := b.Close(); err != nil {
			appLog.Error("i2c close failed", err)
		}
	}, nil
}
