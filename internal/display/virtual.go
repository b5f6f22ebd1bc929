package display

import (
	"sync"

	"epd2271/internal/epd"
	"epd2271/internal/frame"
)

// Viewer shows a frame somewhere other than the panel.
type Viewer interface {
	Show(b *frame.Buffer) error
}

// Virtual is a Panel without hardware. It keeps the refresh cadence of a real
// panel and shows every logical frame on a Viewer.
type Virtual struct {
	opts     epd.Opts
	viewer   Viewer
	physical *frame.Buffer

	mu          sync.Mutex
	counter     uint32
	cycles      uint64
	lastMode    epd.Mode
	temperature float64
}

// NewVirtual returns a virtual panel with the geometry and cadence of opts.
func NewVirtual(opts *epd.Opts, viewer Viewer) *Virtual {
	if opts == nil {
		opts = &epd.E2271KS0C1
	}
	return &Virtual{
		opts:        *opts,
		viewer:      viewer,
		physical:    frame.New(opts.Width, opts.Height),
		temperature: 25,
	}
}

func (v *Virtual) String() string {
	return "virtual"
}

// NewFrame implements Panel.
func (v *Virtual) NewFrame() *frame.Buffer {
	b := v.opts.LogicalBounds()
	return frame.New(b.Dx(), b.Dy())
}

// Update implements Panel.
func (v *Virtual) Update(logical *frame.Buffer) error {
	v.mu.Lock()
	if err := frame.Rotate(v.physical, logical); err != nil {
		v.mu.Unlock()
		return err
	}
	v.lastMode = epd.SelectMode(v.counter, v.opts.FullUpdateEvery)
	v.counter++
	v.cycles++
	v.mu.Unlock()
	if v.viewer == nil {
		return nil
	}
	return v.viewer.Show(logical)
}

// ForceFullUpdate implements Panel.
func (v *Virtual) ForceFullUpdate() {
	v.mu.Lock()
	v.counter = 0
	v.mu.Unlock()
}

// SetTemperature implements Panel.
func (v *Virtual) SetTemperature(celsius float64) {
	v.mu.Lock()
	v.temperature = celsius
	v.mu.Unlock()
}

// Status implements Panel.
func (v *Virtual) Status() epd.Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := epd.Status{
		Ready:         true,
		PanelSettings: v.opts.DefaultPSR.String(),
		State:         epd.StateIdle,
		Counter:       v.counter,
		NextMode:      epd.SelectMode(v.counter, v.opts.FullUpdateEvery).String(),
		Temperature:   v.temperature,
		Cycles:        v.cycles,
		Border:        v.opts.Border.String(),
	}
	if v.cycles > 0 {
		s.LastMode = v.lastMode.String()
	}
	return s
}

// Physical returns the last rotated frame in panel memory order.
func (v *Virtual) Physical() *frame.Buffer {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.physical.Clone()
}
