// Package preview shows frames without a panel attached: on an ANSI terminal
// or as PNG files.
package preview

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"

	"epd2271/internal/frame"
)

// shades for a terminal cell covering 0, 1 or 2 inked pixels.
var shades = [3]color.NRGBA{
	{0xFF, 0xFF, 0xFF, 0xFF},
	{0x80, 0x80, 0x80, 0xFF},
	{0x00, 0x00, 0x00, 0xFF},
}

// Terminal draws frames on a 256 color terminal, one cell per pixel column
// and per two pixel rows.
type Terminal struct {
	w       io.Writer
	palette ansi256.Palette
	buf     bytes.Buffer
}

// NewTerminal returns a Terminal writing to stdout.
func NewTerminal() *Terminal {
	return NewTerminalWriter(colorable.NewColorableStdout())
}

// NewTerminalWriter returns a Terminal writing to w.
func NewTerminalWriter(w io.Writer) *Terminal {
	return &Terminal{w: w, palette: *ansi256.Default}
}

func (t *Terminal) String() string {
	return "terminal"
}

// Show writes b to the terminal.
func (t *Terminal) Show(b *frame.Buffer) error {
	t.buf.Reset()
	for y := 0; y < b.Height(); y += 2 {
		_, _ = t.buf.WriteString("\033[0m")
		for x := 0; x < b.Width(); x++ {
			n := 0
			if b.BitAt(x, y) {
				n++
			}
			if y+1 < b.Height() && b.BitAt(x, y+1) {
				n++
			}
			_, _ = io.WriteString(&t.buf, t.palette.Block(shades[n]))
		}
		_, _ = t.buf.WriteString("\033[0m\n")
	}
	_, err := t.buf.WriteTo(t.w)
	return err
}

// PNG encodes b as a black and white PNG.
func PNG(w io.Writer, b *frame.Buffer) error {
	return gg.NewContextForImage(b).EncodePNG(w)
}

// Dump writes the logical and physical frames to dir as PNG files.
func Dump(dir string, logical, physical *frame.Buffer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	for name, b := range map[string]*frame.Buffer{"logical.png": logical, "physical.png": physical} {
		if b == nil {
			continue
		}
		if err := gg.SavePNG(filepath.Join(dir, name), b); err != nil {
			return fmt.Errorf("preview: write %s: %w", name, err)
		}
	}
	return nil
}
