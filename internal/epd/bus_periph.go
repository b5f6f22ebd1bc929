package epd

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"epd2271/internal/log"
)

// PeriphBus is a Bus on top of a periph.io SPI port.
//
// A periph port can only be connected once, so every Attach reopens the
// port by name and Detach closes it.
type PeriphBus struct {
	name string
	mode spi.Mode
	open func(name string) (spi.PortCloser, error)

	port  spi.PortCloser
	conn  spi.Conn
	maxTx int
}

// NewPeriphBus returns a bus for the SPI port name ("" for the first
// available one). threeWire selects half-duplex reads on the data line.
func NewPeriphBus(name string, threeWire bool) *PeriphBus {
	mode := spi.Mode0
	if threeWire {
		mode |= spi.HalfDuplex
	}
	return &PeriphBus{name: name, mode: mode, open: spireg.Open}
}

func (b *PeriphBus) String() string {
	if b.port != nil {
		return b.port.String()
	}
	if b.name == "" {
		return "spi:default"
	}
	return "spi:" + b.name
}

// Attach implements Bus.
func (b *PeriphBus) Attach(f physic.Frequency) error {
	if b.port != nil {
		return fmt.Errorf("epd: %s already attached", b)
	}
	p, err := b.open(b.name)
	if err != nil {
		return fmt.Errorf("epd: failed to open SPI port %q: %w", b.name, err)
	}
	c, err := p.Connect(f, b.mode, 8)
	if err != nil {
		_ = p.Close()
		return fmt.Errorf("epd: failed to connect SPI port %q at %s: %w", b.name, f, err)
	}
	b.port, b.conn, b.maxTx = p, c, 0
	if l, ok := c.(conn.Limits); ok {
		b.maxTx = l.MaxTxSize()
	}
	log.Debug("epd: spi attached", "port", b, "freq", f, "max_tx", b.maxTx)
	return nil
}

// Detach implements Bus.
func (b *PeriphBus) Detach() error {
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port, b.conn = nil, nil
	return err
}

var errNotAttached = errors.New("epd: bus not attached")

// Tx implements Bus. Writes larger than the driver limit are split into
// packets sent in one TxPackets call, with CS held between them.
func (b *PeriphBus) Tx(w, r []byte) error {
	if b.conn == nil {
		return errNotAttached
	}
	if r != nil && b.mode&spi.HalfDuplex != 0 {
		return b.conn.Tx(nil, r)
	}
	if r != nil || b.maxTx <= 0 || len(w) <= b.maxTx {
		return b.conn.Tx(w, r)
	}
	pkts := make([]spi.Packet, 0, (len(w)+b.maxTx-1)/b.maxTx)
	for off := 0; off < len(w); off += b.maxTx {
		end := min(off+b.maxTx, len(w))
		pkts = append(pkts, spi.Packet{W: w[off:end], KeepCS: end < len(w)})
	}
	if err := b.conn.TxPackets(pkts); err != nil {
		return fmt.Errorf("epd: %d byte transfer in %d packets: %w", len(w), len(pkts), err)
	}
	return nil
}
