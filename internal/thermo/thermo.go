// Package thermo provides the ambient temperature fed to the panel's
// waveform selection.
package thermo

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddr is the TMP102 address with ADD0 tied to ground.
const DefaultAddr uint16 = 0x48

const (
	regTemperature byte = 0
	resolution          = 62500 * physic.MicroKelvin
)

// Reader abstracts how the ambient temperature is obtained.
type Reader interface {
	Read(ctx context.Context) (physic.Temperature, error)
}

// Static always reports the same temperature.
type Static struct {
	Celsius float64
}

// Read implements Reader.
func (s Static) Read(context.Context) (physic.Temperature, error) {
	return physic.ZeroCelsius + physic.Temperature(s.Celsius*float64(physic.Kelvin)), nil
}

func (s Static) String() string {
	return fmt.Sprintf("static(%.1f°C)", s.Celsius)
}

// Sensor reads a TMP102 compatible sensor.
type Sensor struct {
	d *i2c.Dev
}

// NewSensor returns a Sensor on bus b. The sensor is left in its power-on
// configuration (continuous conversion, 12 bit).
func NewSensor(b i2c.Bus, addr uint16) *Sensor {
	if addr == 0 {
		addr = DefaultAddr
	}
	return &Sensor{d: &i2c.Dev{Bus: b, Addr: addr}}
}

// Read implements Reader.
func (s *Sensor) Read(ctx context.Context) (physic.Temperature, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r := make([]byte, 2)
	if err := s.d.Tx([]byte{regTemperature}, r); err != nil {
		return 0, fmt.Errorf("thermo: read %s: %w", s.d, err)
	}
	return decode(r), nil
}

func (s *Sensor) String() string {
	return fmt.Sprintf("tmp102(%s)", s.d)
}

// decode converts the 12 bit two's complement register value.
func decode(b []byte) physic.Temperature {
	count := int16(uint16(b[0])<<8|uint16(b[1])) >> 4
	return physic.ZeroCelsius + physic.Temperature(count)*resolution
}

// Bus is an opened I2C bus with its sensor.
type Bus struct {
	*Sensor
	bus i2c.BusCloser
}

// Open opens the named I2C bus ("" for the first one) and returns a sensor
// on it. host.Init must have been called.
func Open(busName string, addr uint16) (*Bus, error) {
	b, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("thermo: open i2c %q: %w", busName, err)
	}
	return &Bus{Sensor: NewSensor(b, addr), bus: b}, nil
}

// Close releases the bus.
func (b *Bus) Close() error {
	return b.bus.Close()
}
