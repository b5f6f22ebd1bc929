//go:build !linux

package epd

import (
	"errors"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

var errRPIOUnsupported = errors.New("epd: rpio backend requires linux")

func OpenRPIO() error  { return errRPIOUnsupported }
func CloseRPIO() error { return nil }

type RPIOBus struct{}

func NewRPIOBus(chip uint8) *RPIOBus { return &RPIOBus{} }

func (b *RPIOBus) String() string                  { return "rpio:unsupported" }
func (b *RPIOBus) Attach(f physic.Frequency) error { return errRPIOUnsupported }
func (b *RPIOBus) Detach() error                   { return nil }
func (b *RPIOBus) Tx(w, r []byte) error            { return errRPIOUnsupported }

type RPIOPin struct{}

func NewRPIOOutput(n int) RPIOPin { return RPIOPin{} }
func NewRPIOInput(n int) RPIOPin  { return RPIOPin{} }

func (p RPIOPin) Out(l gpio.Level) error { return errRPIOUnsupported }
func (p RPIOPin) Read() gpio.Level       { return gpio.High }
