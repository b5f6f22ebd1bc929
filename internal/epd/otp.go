package epd

import "fmt"

type otpPort interface {
	command(cmd byte) error
	read() (byte, error)
}

// otpBankStart returns the address of the active bank given the byte at
// address 0.
func otpBankStart(marker byte) uint16 {
	if marker == otpBank0Marker {
		return otpBank0Start
	}
	return otpBank1Start
}

// readOTP reads the factory PSR from the active OTP bank.
//
// After the read command the first byte is a dummy and the second one is the
// content of address 0, which tells which bank is active. Reads then advance
// one address at a time up to the bank start, where the two PSR bytes are.
func readOTP(p otpPort) (PanelSettings, error) {
	var psr PanelSettings
	if err := p.command(cmdReadOTP); err != nil {
		return psr, fmt.Errorf("%w: read command: %v", ErrCalibration, err)
	}
	if _, err := p.read(); err != nil {
		return psr, fmt.Errorf("%w: dummy read: %v", ErrCalibration, err)
	}
	marker, err := p.read()
	if err != nil {
		return psr, fmt.Errorf("%w: bank marker: %v", ErrCalibration, err)
	}
	start := otpBankStart(marker)
	for addr := uint16(1); addr < start; addr++ {
		if _, err := p.read(); err != nil {
			return psr, fmt.Errorf("%w: advance to %#04x: %v", ErrCalibration, start, err)
		}
	}
	for i := range psr {
		if psr[i], err = p.read(); err != nil {
			return psr, fmt.Errorf("%w: PSR byte %d: %v", ErrCalibration, i, err)
		}
	}
	// A floating or unprogrammed bus reads all zeros or all ones.
	if psr == (PanelSettings{}) || psr == (PanelSettings{0xFF, 0xFF}) {
		return psr, fmt.Errorf("%w: implausible PSR %s", ErrCalibration, psr)
	}
	return psr, nil
}
