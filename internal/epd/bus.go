package epd

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Bus is a half-duplex SPI device that can be re-clocked.
//
// Attach opens the device at the given clock; Detach releases it so it can be
// attached again at another clock. Tx writes w and, when r is not nil, reads
// len(r) bytes in the same transaction.
type Bus interface {
	Attach(f physic.Frequency) error
	Detach() error
	Tx(w, r []byte) error
}

// OutputPin is a digital output. gpio.PinOut satisfies it.
type OutputPin interface {
	Out(l gpio.Level) error
}

// InputPin is a digital input. gpio.PinIn satisfies it.
type InputPin interface {
	Read() gpio.Level
}

// Pins are the control lines of the panel. CS is optional and only needed
// when the bus binding does not drive chip select itself.
type Pins struct {
	DC    OutputPin
	Reset OutputPin
	Busy  InputPin
	CS    OutputPin
}

func (p *Pins) validate() error {
	switch {
	case p.DC == nil:
		return errMissingPin("DC")
	case p.Reset == nil:
		return errMissingPin("reset")
	case p.Busy == nil:
		return errMissingPin("busy")
	}
	return nil
}

func errMissingPin(name string) error {
	return &pinError{name: name}
}

type pinError struct{ name string }

func (e *pinError) Error() string { return "epd: " + e.name + " pin not configured" }

func (e *pinError) Unwrap() error { return ErrConfiguration }
