package epd

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

type lineTx struct {
	DC, CS gpio.Level
	W      []byte
}

// lineBus records the control line levels seen by each transaction.
type lineBus struct {
	dc, cs *gpiotest.Pin
	txs    []lineTx
}

func (b *lineBus) Attach(physic.Frequency) error { return nil }
func (b *lineBus) Detach() error                 { return nil }

func (b *lineBus) Tx(w, r []byte) error {
	b.txs = append(b.txs, lineTx{DC: b.dc.Read(), CS: b.cs.Read(), W: append([]byte(nil), w...)})
	if r != nil {
		r[0] = 0xA5
	}
	return nil
}

func TestSequencerLines(t *testing.T) {
	dc := &gpiotest.Pin{N: "DC", L: gpio.High}
	cs := &gpiotest.Pin{N: "CS", L: gpio.High}
	bus := &lineBus{dc: dc, cs: cs}
	s := &sequencer{bus: bus, dc: dc, cs: cs}

	if err := s.command(cmdPanelSettings); err != nil {
		t.Fatal(err)
	}
	if err := s.data([]byte{0xCF, 0x8D}); err != nil {
		t.Fatal(err)
	}
	if err := s.frame([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	v, err := s.read()
	if err != nil || v != 0xA5 {
		t.Fatalf("read() = %#x, %v", v, err)
	}

	want := []lineTx{
		{gpio.Low, gpio.Low, []byte{cmdPanelSettings}},
		{gpio.High, gpio.Low, []byte{0xCF}},
		{gpio.High, gpio.Low, []byte{0x8D}},
		{gpio.High, gpio.Low, []byte{1, 2, 3}},
		{gpio.High, gpio.Low, []byte{0}},
	}
	if diff := cmp.Diff(bus.txs, want); diff != "" {
		t.Errorf("transactions (-got +want):\n%s", diff)
	}
	if dc.Read() != gpio.High || cs.Read() != gpio.High {
		t.Errorf("idle lines DC=%s CS=%s, want both high", dc.Read(), cs.Read())
	}
}

func TestNewAcceptsPeriphPins(t *testing.T) {
	pins := Pins{
		DC:    &gpiotest.Pin{N: "GPIO25"},
		Reset: &gpiotest.Pin{N: "GPIO17"},
		Busy:  &gpiotest.Pin{N: "GPIO24", L: gpio.High},
	}
	if _, err := New(&lineBus{}, pins, nil); err != nil {
		t.Errorf("New() = %v", err)
	}
}
