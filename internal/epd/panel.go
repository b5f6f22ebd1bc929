package epd

import (
	"fmt"
	"image"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Commands
const (
	cmdPanelSettings    byte = 0x00
	cmdPowerOff         byte = 0x02
	cmdPowerOn          byte = 0x04
	cmdFrame1           byte = 0x10
	cmdRefresh          byte = 0x12
	cmdFrame2           byte = 0x13
	cmdVcomDataInterval byte = 0x50
	cmdReadOTP          byte = 0xA2
	cmdActiveTemp       byte = 0xE0
	cmdInputTemp        byte = 0xE5
)

// Register values
const (
	softResetPSR     byte = 0x0E
	activeTempEnable byte = 0x02
	fastTempFlag     byte = 0x40
	fastPSR0         byte = 0x10
	fastPSR1         byte = 0x02
	borderWhite      byte = 0x27
	vcomDataInterval byte = 0x07
)

// OTP layout
const (
	otpBank0Marker byte   = 0xA5
	otpBank0Start  uint16 = 0x0FB4
	otpBank1Start  uint16 = 0x1FB4
)

// PanelSettings is the two byte PSR register value.
type PanelSettings [2]byte

func (p PanelSettings) String() string {
	return fmt.Sprintf("%02x %02x", p[0], p[1])
}

// BorderVariant selects how fast refreshes program the border and VCOM
// interval. Both orderings were validated on hardware with different
// controller firmware; a panel must stick to one.
type BorderVariant uint8

const (
	// BorderSingle sends the white border once before PSR and the VCOM
	// interval once after PSR.
	BorderSingle BorderVariant = iota
	// BorderDoubled sends the white border twice right before frame 1 and
	// the VCOM interval twice right after frame 2.
	BorderDoubled
)

func (v BorderVariant) String() string {
	switch v {
	case BorderSingle:
		return "single"
	case BorderDoubled:
		return "doubled"
	default:
		return fmt.Sprintf("BorderVariant(%d)", uint8(v))
	}
}

// ParseBorderVariant maps "single" or "doubled" to a BorderVariant.
func ParseBorderVariant(s string) (BorderVariant, error) {
	switch s {
	case "single", "":
		return BorderSingle, nil
	case "doubled":
		return BorderDoubled, nil
	default:
		return 0, fmt.Errorf("%w: unknown border variant %q", ErrConfiguration, s)
	}
}

// Opts defines the panel geometry and protocol timing.
type Opts struct {
	// Physical geometry in panel pixel addressing. The logical (host) frame is
	// Height×Width.
	Width  int
	Height int

	// OTPClock is the bus clock used while reading calibration data,
	// WriteClock the clock for everything else.
	OTPClock   physic.Frequency
	WriteClock physic.Frequency

	// FullUpdateEvery is the refresh cadence: every n-th cycle is full.
	FullUpdateEvery uint32

	Border BorderVariant

	BusyTimeout    time.Duration
	BusyPoll       time.Duration
	ResetDelay     time.Duration
	SoftResetDelay time.Duration

	// Calibrate reads the PSR from OTP during Setup. DefaultPSR is used when
	// disabled or when the read fails.
	Calibrate  bool
	DefaultPSR PanelSettings
}

// E2271KS0C1 contains the configuration of the 2.71" reference panel.
var E2271KS0C1 = Opts{
	Width:           176,
	Height:          264,
	OTPClock:        4 * physic.MegaHertz,
	WriteClock:      10 * physic.MegaHertz,
	FullUpdateEvery: 120,
	Border:          BorderSingle,
	BusyTimeout:     15 * time.Second,
	BusyPoll:        10 * time.Millisecond,
	ResetDelay:      50 * time.Millisecond,
	SoftResetDelay:  50 * time.Millisecond,
	Calibrate:       true,
	DefaultPSR:      PanelSettings{0xCF, 0x8D},
}

// FrameSize returns the size in bytes of one physical frame.
func (o *Opts) FrameSize() int {
	return o.Width * o.Height / 8
}

// LogicalBounds returns the bounds of the host frame (rotated geometry).
func (o *Opts) LogicalBounds() image.Rectangle {
	return image.Rect(0, 0, o.Height, o.Width)
}

func (o *Opts) validate() error {
	switch {
	case o.Width <= 0 || o.Height <= 0:
		return fmt.Errorf("%w: geometry %dx%d", ErrConfiguration, o.Width, o.Height)
	case o.Width%8 != 0:
		return fmt.Errorf("%w: width %d is not a multiple of 8", ErrConfiguration, o.Width)
	case o.OTPClock <= 0 && o.Calibrate:
		return fmt.Errorf("%w: OTP clock not set", ErrConfiguration)
	case o.WriteClock <= 0:
		return fmt.Errorf("%w: write clock not set", ErrConfiguration)
	case o.FullUpdateEvery == 0:
		return fmt.Errorf("%w: full update cadence must be at least 1", ErrConfiguration)
	case o.Border > BorderDoubled:
		return fmt.Errorf("%w: %s", ErrConfiguration, o.Border)
	case o.BusyTimeout <= 0:
		return fmt.Errorf("%w: busy timeout must be positive", ErrConfiguration)
	}
	return nil
}
