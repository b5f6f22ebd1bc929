package epd

import (
	"periph.io/x/conn/v3/gpio"
)

// sequencer frames bytes as commands or data on the bus. DC is low for the
// duration of a command byte and high otherwise.
type sequencer struct {
	bus Bus
	dc  OutputPin
	cs  OutputPin
}

func (s *sequencer) command(cmd byte) error {
	if err := s.dc.Out(gpio.Low); err != nil {
		return err
	}
	err := s.tx([]byte{cmd}, nil)
	if dcErr := s.dc.Out(gpio.High); err == nil {
		err = dcErr
	}
	return err
}

// data sends each byte in its own transaction.
func (s *sequencer) data(b []byte) error {
	if err := s.dc.Out(gpio.High); err != nil {
		return err
	}
	for _, v := range b {
		if err := s.tx([]byte{v}, nil); err != nil {
			return err
		}
	}
	return nil
}

// frame sends b as one bulk transaction.
func (s *sequencer) frame(b []byte) error {
	if err := s.dc.Out(gpio.High); err != nil {
		return err
	}
	return s.tx(b, nil)
}

func (s *sequencer) read() (byte, error) {
	if err := s.dc.Out(gpio.High); err != nil {
		return 0, err
	}
	r := []byte{0}
	if err := s.tx([]byte{0}, r); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (s *sequencer) tx(w, r []byte) error {
	if s.cs == nil {
		return s.bus.Tx(w, r)
	}
	if err := s.cs.Out(gpio.Low); err != nil {
		return err
	}
	err := s.bus.Tx(w, r)
	if csErr := s.cs.Out(gpio.High); err == nil {
		err = csErr
	}
	return err
}
