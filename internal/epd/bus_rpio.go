//go:build linux

package epd

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// OpenRPIO maps the BCM2835 GPIO registers. It must be called before any
// RPIOPin or RPIOBus is used.
func OpenRPIO() error {
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("epd: failed to open gpio registers: %w", err)
	}
	return nil
}

// CloseRPIO unmaps the GPIO registers.
func CloseRPIO() error {
	return rpio.Close()
}

// RPIOBus is a Bus driving SPI0 through go-rpio register access. The clock
// can be changed without reopening anything, Detach just ends the SPI
// session. Reads are full duplex on MISO; panels wired 3-wire need
// PeriphBus.
type RPIOBus struct {
	chip     uint8
	attached bool
}

// NewRPIOBus returns a bus on SPI0 with the given chip select (CE0 or CE1).
func NewRPIOBus(chip uint8) *RPIOBus {
	return &RPIOBus{chip: chip}
}

func (b *RPIOBus) String() string {
	return fmt.Sprintf("rpio:spi0.%d", b.chip)
}

// Attach implements Bus.
func (b *RPIOBus) Attach(f physic.Frequency) error {
	if b.attached {
		return fmt.Errorf("epd: %s already attached", b)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		return fmt.Errorf("epd: failed to begin %s: %w", b, err)
	}
	rpio.SpiSpeed(int(f / physic.Hertz))
	rpio.SpiChipSelect(b.chip)
	rpio.SpiMode(0, 0)
	b.attached = true
	return nil
}

// Detach implements Bus.
func (b *RPIOBus) Detach() error {
	if !b.attached {
		return nil
	}
	rpio.SpiEnd(rpio.Spi0)
	b.attached = false
	return nil
}

// Tx implements Bus.
func (b *RPIOBus) Tx(w, r []byte) error {
	if !b.attached {
		return errNotAttached
	}
	if r == nil {
		rpio.SpiTransmit(w...)
		return nil
	}
	buf := make([]byte, max(len(w), len(r)))
	copy(buf, w)
	rpio.SpiExchange(buf)
	copy(r, buf)
	return nil
}

// RPIOPin adapts an rpio.Pin to OutputPin and InputPin.
type RPIOPin struct {
	pin rpio.Pin
}

// NewRPIOOutput configures BCM pin n as an output.
func NewRPIOOutput(n int) RPIOPin {
	p := rpio.Pin(n)
	p.Output()
	return RPIOPin{pin: p}
}

// NewRPIOInput configures BCM pin n as an input with pull-up.
func NewRPIOInput(n int) RPIOPin {
	p := rpio.Pin(n)
	p.Input()
	p.PullUp()
	return RPIOPin{pin: p}
}

func (p RPIOPin) String() string {
	return fmt.Sprintf("GPIO%d", int(p.pin))
}

// Out implements OutputPin.
func (p RPIOPin) Out(l gpio.Level) error {
	if l {
		p.pin.High()
	} else {
		p.pin.Low()
	}
	return nil
}

// Read implements InputPin.
func (p RPIOPin) Read() gpio.Level {
	return gpio.Level(p.pin.Read() == rpio.High)
}
