package epd

import "math"

// Mode is the refresh mode of one update cycle.
type Mode uint8

const (
	// Full uses the complete waveform: no ghosting, visible flash.
	Full Mode = iota
	// Fast uses the abbreviated waveform and the previous frame.
	Fast
)

func (m Mode) String() string {
	if m == Fast {
		return "fast"
	}
	return "full"
}

// SelectMode returns Full for the first cycle and every every-th cycle after
// it, Fast otherwise.
func SelectMode(counter, every uint32) Mode {
	if counter == 0 || every == 0 || counter%every == 0 {
		return Full
	}
	return Fast
}

// EncodeTemperature returns the TSET byte: the rounded temperature as an 8
// bit two's complement value, with 0x40 set in fast mode.
func EncodeTemperature(celsius float64, mode Mode) byte {
	ts := byte(int(math.Round(celsius)) & 0xFF)
	if mode == Fast {
		ts |= fastTempFlag
	}
	return ts
}

// Registers are the register values transmitted in one cycle.
type Registers struct {
	Mode       Mode
	Temp       byte
	ActiveTemp byte
	PSR        PanelSettings
}

// Derive computes the registers for mode. base is never modified.
func Derive(mode Mode, celsius float64, base PanelSettings) Registers {
	r := Registers{
		Mode:       mode,
		Temp:       EncodeTemperature(celsius, mode),
		ActiveTemp: activeTempEnable,
		PSR:        base,
	}
	if mode == Fast {
		r.PSR[0] |= fastPSR0
		r.PSR[1] |= fastPSR1
	}
	return r
}
