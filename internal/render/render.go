// Package render composes the agenda screen for the 264×176 panel.
package render

import (
	"context"
	"fmt"
	"image/color"
	"image/draw"
	"os"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"epd2271/internal/agenda"
	"epd2271/internal/convert"
	"epd2271/internal/log"
)

// Fonts are the faces used on screen.
type Fonts struct {
	Title font.Face
	Body  font.Face
	Small font.Face
}

// BasicFonts uses the built-in 7×13 bitmap font everywhere.
func BasicFonts() Fonts {
	return Fonts{Title: basicfont.Face7x13, Body: basicfont.Face7x13, Small: basicfont.Face7x13}
}

// LoadFonts parses a TTF file. An empty path returns BasicFonts.
func LoadFonts(path string) (Fonts, error) {
	if path == "" {
		return BasicFonts(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Fonts{}, fmt.Errorf("render: read font: %w", err)
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return Fonts{}, fmt.Errorf("render: parse font %s: %w", path, err)
	}
	face := func(size float64) font.Face {
		return truetype.NewFace(f, &truetype.Options{Size: size, Hinting: font.HintingFull})
	}
	return Fonts{Title: face(16), Body: face(12), Small: face(10)}, nil
}

const (
	margin    = 4.0
	headerH   = 22.0
	footerH   = 14.0
	lineGap   = 2.0
	timeWidth = 44.0
)

// Renderer draws screens into 1 bpp frames.
type Renderer struct {
	Fonts Fonts
}

// Screen is the content of the agenda screen.
type Screen struct {
	Now         time.Time
	Occurrences []agenda.Occurrence
	// Notice replaces the event list, e.g. when no feed could be loaded.
	Notice string
	Footer string
}

// Draw composes s into dst.
func (r *Renderer) Draw(dst draw.Image, s Screen) {
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.SetColor(color.White)
	dc.Clear()

	// Header: inverted bar with date and time.
	dc.SetColor(color.Black)
	dc.DrawRectangle(0, 0, w, headerH)
	dc.Fill()
	dc.SetColor(color.White)
	dc.SetFontFace(r.Fonts.Title)
	dc.DrawStringAnchored(s.Now.Format("Mon 2 Jan"), margin, headerH/2, 0, 0.35)
	dc.DrawStringAnchored(s.Now.Format("15:04"), w-margin, headerH/2, 1, 0.35)

	dc.SetColor(color.Black)
	dc.SetFontFace(r.Fonts.Body)
	lineH := dc.FontHeight() + lineGap
	y := headerH + margin + dc.FontHeight()
	bottom := h - footerH

	if s.Notice != "" {
		for _, line := range dc.WordWrap(s.Notice, w-2*margin) {
			if y > bottom {
				break
			}
			dc.DrawString(line, margin, y)
			y += lineH
		}
	} else {
		r.drawEvents(dc, s, &y, lineH, w, bottom)
	}

	if s.Footer != "" {
		dc.DrawLine(0, bottom, w, bottom)
		dc.SetLineWidth(1)
		dc.Stroke()
		dc.SetFontFace(r.Fonts.Small)
		dc.DrawStringAnchored(s.Footer, w-margin, bottom+footerH/2, 1, 0.35)
	}

	convert.Into(dst, dc.Image(), convert.Threshold)
}

func (r *Renderer) drawEvents(dc *gg.Context, s Screen, y *float64, lineH, w, bottom float64) {
	if len(s.Occurrences) == 0 {
		dc.DrawString("Nothing scheduled", margin, *y)
		return
	}
	today := dateOf(s.Now)
	var day time.Time
	shown := 0
	for _, o := range s.Occurrences {
		d := dateOf(o.Start)
		if d.Before(today) {
			d = today
		}
		need := lineH
		if !d.Equal(day) {
			need += lineH
		}
		if *y+need-lineH > bottom-lineGap {
			break
		}
		if !d.Equal(day) {
			day = d
			dc.DrawString(dayLabel(d, today), margin, *y)
			dc.DrawLine(margin, *y+2, w-margin, *y+2)
			dc.SetLineWidth(0.5)
			dc.Stroke()
			*y += lineH
		}
		when := "all day"
		if !o.AllDay {
			when = o.Start.Format("15:04")
		}
		dc.DrawString(when, margin, *y)
		dc.DrawString(truncate(dc, o.Summary, w-2*margin-timeWidth), margin+timeWidth, *y)
		*y += lineH
		shown++
	}
	if rest := len(s.Occurrences) - shown; rest > 0 {
		log.Debug("render: events not shown", "count", rest)
	}
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayLabel(d, today time.Time) string {
	switch d.Sub(today) / (24 * time.Hour) {
	case 0:
		return "Today"
	case 1:
		return "Tomorrow"
	default:
		return d.Format("Monday 2 Jan")
	}
}

// truncate shortens s with an ellipsis so that it fits in width.
func truncate(dc *gg.Context, s string, width float64) string {
	if tw, _ := dc.MeasureString(s); tw <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 {
		r = r[:len(r)-1]
		c := string(r) + "..."
		if tw, _ := dc.MeasureString(c); tw <= width {
			return c
		}
	}
	return ""
}

// AgendaSource renders the agenda of the configured feeds.
type AgendaSource struct {
	Agenda   *agenda.Agenda
	Renderer *Renderer
	Now      func() time.Time
	// Footer returns the status line, may be nil.
	Footer func() string
}

// Render implements display.Source.
func (s *AgendaSource) Render(ctx context.Context, dst draw.Image) error {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	if s.Agenda.Location != nil {
		now = now.In(s.Agenda.Location)
	}
	screen := Screen{Now: now}
	occ, err := s.Agenda.Load(ctx, now)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("render: agenda unavailable", err)
		screen.Notice = "Calendar unavailable: " + err.Error()
	}
	screen.Occurrences = occ
	if s.Footer != nil {
		screen.Footer = s.Footer()
	}
	s.Renderer.Draw(dst, screen)
	return nil
}

func (s *AgendaSource) String() string {
	return fmt.Sprintf("agenda(%d feeds)", len(s.Agenda.Feeds))
}
