// Package display drives one panel from a rendering source: it renders a
// logical frame, feeds the ambient temperature and runs at most one refresh
// cycle at a time.
package display

import (
	"context"
	"errors"
	"fmt"
	"image/draw"
	"sync"
	"time"

	"epd2271/internal/epd"
	"epd2271/internal/frame"
	"epd2271/internal/log"
	"epd2271/internal/thermo"
)

// ErrBusy is returned when a refresh is requested while one is running.
var ErrBusy = errors.New("display: refresh already in progress")

// Source draws the content of the panel into a logical frame.
type Source interface {
	Render(ctx context.Context, dst draw.Image) error
}

// Panel is the part of *epd.Dev the runner uses.
type Panel interface {
	NewFrame() *frame.Buffer
	Update(logical *frame.Buffer) error
	ForceFullUpdate()
	SetTemperature(celsius float64)
	Status() epd.Status
}

// Result describes the last refresh request.
type Result struct {
	At       time.Time     `json:"at"`
	Skipped  bool          `json:"skipped"`
	Mode     string        `json:"mode,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Status is what the API reports.
type Status struct {
	Panel  epd.Status `json:"panel"`
	Source string     `json:"source"`
	Last   *Result    `json:"last,omitempty"`
}

// Runner serializes refreshes of a panel.
type Runner struct {
	panel  Panel
	source Source
	temp   thermo.Reader
	now    func() time.Time

	busy sync.Mutex

	mu          sync.Mutex
	frame       *frame.Buffer
	fullPending bool
	fullGen     uint64 // bumped by ForceFull
	last        *Result
}

// NewRunner returns a Runner. temp may be nil to keep the panel's
// temperature unchanged.
func NewRunner(panel Panel, source Source, temp thermo.Reader) *Runner {
	return &Runner{panel: panel, source: source, temp: temp, now: time.Now}
}

// Refresh renders the source and updates the panel. The cycle is skipped when
// the rendered frame equals the one on the panel, unless force is set or a
// full refresh was requested. Refresh returns ErrBusy without waiting when
// another refresh is running.
func (r *Runner) Refresh(ctx context.Context, force bool) (Result, error) {
	if !r.busy.TryLock() {
		log.Warn("display: refresh rejected, busy")
		return Result{}, ErrBusy
	}
	defer r.busy.Unlock()

	start := r.now()
	res := Result{At: start}
	err := r.refresh(ctx, force, &res)
	res.Duration = r.now().Sub(start)
	if err != nil {
		res.Error = err.Error()
	}
	r.mu.Lock()
	r.last = &res
	r.mu.Unlock()
	return res, err
}

func (r *Runner) refresh(ctx context.Context, force bool, res *Result) error {
	logical := r.panel.NewFrame()
	if err := r.source.Render(ctx, logical); err != nil {
		return fmt.Errorf("display: render %s: %w", name(r.source), err)
	}
	if r.temp != nil {
		if t, err := r.temp.Read(ctx); err != nil {
			log.Warn("display: temperature unavailable, keeping last value", "err", err)
		} else {
			r.panel.SetTemperature(t.Celsius())
		}
	}

	r.mu.Lock()
	unchanged := r.frame != nil && r.frame.Equal(logical)
	pending := r.fullPending
	gen := r.fullGen
	r.mu.Unlock()
	if unchanged && !force && !pending {
		log.Debug("display: frame unchanged, refresh skipped")
		res.Skipped = true
		return nil
	}

	res.Mode = r.panel.Status().NextMode
	err := r.panel.Update(logical)
	if errors.Is(err, epd.ErrNotReady) {
		return err
	}
	// Bus errors still leave the new frame on the panel history.
	r.mu.Lock()
	r.frame = logical
	if r.fullGen == gen {
		r.fullPending = false
	}
	r.mu.Unlock()
	return err
}

// ForceFull makes the next refresh a full one, even if the frame did not
// change.
func (r *Runner) ForceFull() {
	r.panel.ForceFullUpdate()
	r.mu.Lock()
	r.fullPending = true
	r.fullGen++
	r.mu.Unlock()
	log.Info("display: full refresh requested")
}

// Frame returns a copy of the last logical frame sent to the panel, or nil.
func (r *Runner) Frame() *frame.Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frame == nil {
		return nil
	}
	return r.frame.Clone()
}

// Status returns the panel status and the last refresh result.
func (r *Runner) Status() Status {
	s := Status{Panel: r.panel.Status(), Source: name(r.source)}
	r.mu.Lock()
	if r.last != nil {
		last := *r.last
		s.Last = &last
	}
	r.mu.Unlock()
	return s
}

func name(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", v)
}
