package epd

import "errors"

var (
	// ErrBusTransaction wraps a failed command, data or frame transfer.
	ErrBusTransaction = errors.New("epd: bus transaction failed")

	// ErrBusyTimeout is reported when the busy line stays low past
	// Opts.BusyTimeout. The cycle continues.
	ErrBusyTimeout = errors.New("epd: busy timeout")

	// ErrCalibration is returned by the OTP reader; the device falls back to
	// Opts.DefaultPSR.
	ErrCalibration = errors.New("epd: calibration failed")

	// ErrConfiguration is returned for invalid geometry, pins or bus setup.
	ErrConfiguration = errors.New("epd: invalid configuration")

	// ErrNotReady is returned by Update when Setup did not complete.
	ErrNotReady = errors.New("epd: device not ready")
)
