package epd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"epd2271/internal/frame"
	"epd2271/internal/log"
)

// Dev is an open handle to the panel.
//
// Update is not safe for concurrent use; callers serialize refreshes. Status
// may be called at any time.
type Dev struct {
	bus   Bus
	seq   sequencer
	pins  Pins
	opts  Opts
	sleep func(time.Duration)
	now   func() time.Time

	physical *frame.Buffer
	blank    []byte
	history  *frame.History

	attached    bool
	initialized bool

	mu          sync.Mutex
	ready       bool
	calibrated  bool
	psr         PanelSettings
	state       State
	counter     uint32
	forceFull   bool
	lastMode    Mode
	temperature float64
	cycles      uint64
	busErrors   uint64
	busyTimeout uint64
}

// Status is a snapshot of the device state.
type Status struct {
	Ready         bool    `json:"ready"`
	Calibrated    bool    `json:"calibrated"`
	PanelSettings string  `json:"panel_settings"`
	State         State   `json:"state"`
	Counter       uint32  `json:"counter"`
	HasPrevious   bool    `json:"has_previous"`
	NextMode      string  `json:"next_mode"`
	LastMode      string  `json:"last_mode,omitempty"`
	Temperature   float64 `json:"temperature"`
	Cycles        uint64  `json:"cycles"`
	BusErrors     uint64  `json:"bus_errors"`
	BusyTimeouts  uint64  `json:"busy_timeouts"`
	Border        string  `json:"border"`
}

// New returns a device for the panel described by opts. No I/O is done until
// Setup.
func New(bus Bus, pins Pins, opts *Opts) (*Dev, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: no bus", ErrConfiguration)
	}
	if opts == nil {
		opts = &E2271KS0C1
	}
	if err := pins.validate(); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	physical := frame.New(opts.Width, opts.Height)
	lb := opts.LogicalBounds()
	if err := frame.CheckRotation(frame.New(lb.Dx(), lb.Dy()), physical); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	d := &Dev{
		bus:         bus,
		seq:         sequencer{bus: bus, dc: pins.DC, cs: pins.CS},
		pins:        pins,
		opts:        *opts,
		sleep:       time.Sleep,
		now:         time.Now,
		physical:    physical,
		blank:       make([]byte, opts.FrameSize()),
		history:     frame.NewHistory(opts.FrameSize()),
		psr:         opts.DefaultPSR,
		temperature: 25,
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("epd.Dev{%s, %dx%d}", d.bus, d.opts.Height, d.opts.Width)
}

// NewFrame allocates a blank logical frame with the geometry Update expects.
func (d *Dev) NewFrame() *frame.Buffer {
	b := d.opts.LogicalBounds()
	return frame.New(b.Dx(), b.Dy())
}

// Setup prepares the panel: it reads the OTP calibration at the OTP clock
// when enabled, then attaches the bus at the write clock.
//
// A calibration failure is logged and the default PSR is used. Any other
// error leaves the device not ready.
func (d *Dev) Setup() error {
	d.mu.Lock()
	d.ready = false
	d.mu.Unlock()

	if err := d.pins.DC.Out(gpio.High); err != nil {
		return fmt.Errorf("%w: DC pin: %v", ErrConfiguration, err)
	}
	if err := d.pins.Reset.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: reset pin: %v", ErrConfiguration, err)
	}
	if d.pins.CS != nil {
		if err := d.pins.CS.Out(gpio.High); err != nil {
			return fmt.Errorf("%w: CS pin: %v", ErrConfiguration, err)
		}
	}
	if d.attached {
		d.detach()
	}

	psr, calibrated := d.opts.DefaultPSR, false
	if d.opts.Calibrate {
		var otp PanelSettings
		err := d.withClock(d.opts.OTPClock, func() error {
			d.hardwareReset()
			d.waitUntilIdle()
			eh := &errorHandler{d: d}
			softReset(eh, d.opts.SoftResetDelay)
			if err := eh.err(); err != nil {
				return fmt.Errorf("%w: soft reset: %v", ErrCalibration, err)
			}
			var err error
			otp, err = readOTP(&d.seq)
			return err
		})
		switch {
		case err == nil:
			psr, calibrated = otp, true
			log.Info("epd: calibration loaded", "psr", otp)
		case errors.Is(err, ErrCalibration):
			log.Error("epd: calibration failed, using default PSR", err, "psr", psr)
		default:
			return err
		}
	}

	if err := d.attach(d.opts.WriteClock); err != nil {
		return err
	}

	d.mu.Lock()
	d.psr = psr
	d.calibrated = calibrated
	d.counter = 0
	d.forceFull = false
	d.history.Reset()
	d.state = StateIdle
	d.ready = true
	d.mu.Unlock()
	log.Info("epd: ready", "dev", d, "psr", psr, "calibrated", calibrated, "border", d.opts.Border)
	return nil
}

// Update rotates logical into the physical frame and runs one refresh cycle.
//
// Bus errors do not abort the cycle; they are joined in the returned error.
// Busy timeouts are logged and counted but not returned.
func (d *Dev) Update(logical *frame.Buffer) error {
	d.mu.Lock()
	if !d.ready {
		d.mu.Unlock()
		log.Warn("epd: update skipped, device not ready")
		return ErrNotReady
	}
	if d.forceFull {
		d.forceFull = false
		d.counter = 0
	}
	counter := d.counter
	regs := Derive(SelectMode(counter, d.opts.FullUpdateEvery), d.temperature, d.psr)
	d.mu.Unlock()
	if err := frame.Rotate(d.physical, logical); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	eh := &errorHandler{d: d}
	if !d.initialized {
		eh.enter(StateHardwareReset)
		d.hardwareReset()
	}
	start := d.now()
	runCycle(eh, &cycle{
		regs:     regs,
		border:   d.opts.Border,
		current:  d.physical.Pix,
		previous: d.history.Previous(),
		blank:    d.blank,
		settle:   d.opts.SoftResetDelay,
	})
	d.mu.Lock()
	d.history.Record(d.physical.Pix)
	// A full refresh requested during the cycle stays pending.
	if !d.forceFull {
		d.counter = counter + 1
	}
	d.lastMode = regs.Mode
	d.cycles++
	d.mu.Unlock()

	err := eh.err()
	log.Info("epd: refresh done", "mode", regs.Mode, "counter", counter, "temp", fmt.Sprintf("%#02x", regs.Temp), "psr", regs.PSR, "elapsed", d.now().Sub(start).Round(time.Millisecond), "errors", len(eh.errs))
	return err
}

// ForceFullUpdate makes the next Update a full refresh, including when it is
// called while a cycle runs.
func (d *Dev) ForceFullUpdate() {
	d.mu.Lock()
	d.forceFull = true
	d.counter = 0
	d.mu.Unlock()
}

// SetTemperature sets the ambient temperature in °C used for the next cycle.
func (d *Dev) SetTemperature(celsius float64) {
	d.mu.Lock()
	d.temperature = celsius
	d.mu.Unlock()
}

// Status returns a snapshot of the device state.
func (d *Dev) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Status{
		Ready:         d.ready,
		Calibrated:    d.calibrated,
		PanelSettings: d.psr.String(),
		State:         d.state,
		Counter:       d.counter,
		HasPrevious:   d.history.Recorded(),
		NextMode:      SelectMode(d.counter, d.opts.FullUpdateEvery).String(),
		Temperature:   d.temperature,
		Cycles:        d.cycles,
		BusErrors:     d.busErrors,
		BusyTimeouts:  d.busyTimeout,
		Border:        d.opts.Border.String(),
	}
	if d.forceFull {
		s.NextMode = Full.String()
	}
	if d.cycles > 0 {
		s.LastMode = d.lastMode.String()
	}
	return s
}

// Previous returns a copy of the last transmitted physical frame.
func (d *Dev) Previous() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.history.Previous()...)
}

// Close detaches the bus. The device must be Setup again before use.
func (d *Dev) Close() error {
	d.mu.Lock()
	d.ready = false
	d.mu.Unlock()
	if !d.attached {
		return nil
	}
	d.attached = false
	return d.bus.Detach()
}

func (d *Dev) attach(f physic.Frequency) error {
	if err := d.bus.Attach(f); err != nil {
		return fmt.Errorf("%w: attach bus at %s: %v", ErrConfiguration, f, err)
	}
	d.attached = true
	return nil
}

func (d *Dev) detach() {
	d.attached = false
	if err := d.bus.Detach(); err != nil {
		log.Warn("epd: detach failed", "err", err)
	}
}

// withClock runs fn with the bus attached at f and detaches it afterwards.
func (d *Dev) withClock(f physic.Frequency, fn func() error) error {
	if err := d.attach(f); err != nil {
		return err
	}
	defer d.detach()
	return fn()
}

// hardwareReset pulses the reset line low, high, low, high. It only runs
// once per process; later cycles rely on the soft reset.
func (d *Dev) hardwareReset() {
	for _, l := range []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High} {
		if err := d.pins.Reset.Out(l); err != nil {
			log.Warn("epd: reset pin", "level", l, "err", err)
		}
		d.sleep(d.opts.ResetDelay)
	}
	d.initialized = true
}

// waitUntilIdle polls the busy line (high means idle) until it is released or
// the timeout expires.
func (d *Dev) waitUntilIdle() error {
	deadline := d.now().Add(d.opts.BusyTimeout)
	for d.pins.Busy.Read() == gpio.Low {
		if !d.now().Before(deadline) {
			d.mu.Lock()
			d.busyTimeout++
			state := d.state
			d.mu.Unlock()
			err := fmt.Errorf("%w after %s", ErrBusyTimeout, d.opts.BusyTimeout)
			log.Warn("epd: busy line stuck, continuing", "state", state, "err", err)
			return err
		}
		d.sleep(d.opts.BusyPoll)
	}
	return nil
}

// errorHandler implements controller on top of Dev. Bus failures are logged
// and collected; later calls still run.
type errorHandler struct {
	d    *Dev
	errs []error
}

func (eh *errorHandler) fail(op string, err error) {
	if err == nil {
		return
	}
	err = fmt.Errorf("%w: %s: %v", ErrBusTransaction, op, err)
	eh.d.mu.Lock()
	eh.d.busErrors++
	state := eh.d.state
	eh.d.mu.Unlock()
	log.Error("epd: transfer failed", err, "state", state)
	eh.errs = append(eh.errs, err)
}

func (eh *errorHandler) sendCommand(cmd byte) {
	eh.fail(fmt.Sprintf("command %#02x", cmd), eh.d.seq.command(cmd))
}

func (eh *errorHandler) sendData(data ...byte) {
	eh.fail(fmt.Sprintf("data % x", data), eh.d.seq.data(data))
}

func (eh *errorHandler) sendFrame(b []byte) {
	eh.fail(fmt.Sprintf("frame (%d bytes)", len(b)), eh.d.seq.frame(b))
}

func (eh *errorHandler) waitUntilIdle() {
	_ = eh.d.waitUntilIdle()
}

func (eh *errorHandler) delay(t time.Duration) {
	eh.d.sleep(t)
}

func (eh *errorHandler) enter(s State) {
	eh.d.mu.Lock()
	eh.d.state = s
	eh.d.mu.Unlock()
	log.Debug("epd: state", "state", s)
}

func (eh *errorHandler) err() error {
	return errors.Join(eh.errs...)
}
