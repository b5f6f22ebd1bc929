// Package frame holds 1 bit per pixel frame buffers as they are exchanged
// between the host renderer and the panel: a row-major, MSB-first byte array
// where a set bit is an inked (black) pixel.
package frame

import (
	"bytes"
	"errors"
	"image"
	"image/color"
)

// ErrGeometry is returned when two buffers cannot be mapped onto each other.
var ErrGeometry = errors.New("frame: geometry mismatch")

// Bit is the color of a single pixel. On is ink (black), Off is paper (white).
type Bit bool

const (
	Off Bit = false
	On  Bit = true
)

// RGBA implements color.Color.
func (b Bit) RGBA() (r, g, bl, a uint32) {
	if b == On {
		return 0, 0, 0, 0xFFFF
	}
	return 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF
}

func toBit(c color.Color) color.Color {
	if b, ok := c.(Bit); ok {
		return b
	}
	r, g, b, a := c.RGBA()
	// Transparent pixels are treated as paper.
	if a < 0x8000 {
		return Off
	}
	y := (299*r + 587*g + 114*b + 500) / 1000
	return Bit(y < 0x8000)
}

// BitModel converts any color to Bit by thresholding luma at 50%.
var BitModel = color.ModelFunc(toBit)

// Buffer is a bit-packed 1 bpp image. It implements draw.Image so host
// renderers can draw into it directly.
type Buffer struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
}

// New allocates a zero (all paper) buffer of w×h pixels. Rows are padded to a
// whole byte.
func New(w, h int) *Buffer {
	if w < 0 || h < 0 {
		return &Buffer{}
	}
	stride := (w + 7) / 8
	return &Buffer{
		Pix:    make([]byte, stride*h),
		Stride: stride,
		Rect:   image.Rect(0, 0, w, h),
	}
}

// Width returns the width in pixels.
func (b *Buffer) Width() int { return b.Rect.Dx() }

// Height returns the height in pixels.
func (b *Buffer) Height() int { return b.Rect.Dy() }

// Len returns the size of the packed buffer in bytes.
func (b *Buffer) Len() int { return len(b.Pix) }

// ColorModel implements image.Image.
func (b *Buffer) ColorModel() color.Model { return BitModel }

// Bounds implements image.Image.
func (b *Buffer) Bounds() image.Rectangle { return b.Rect }

// At implements image.Image.
func (b *Buffer) At(x, y int) color.Color { return Bit(b.BitAt(x, y)) }

// Set implements draw.Image.
func (b *Buffer) Set(x, y int, c color.Color) {
	b.SetBit(x, y, BitModel.Convert(c).(Bit) == On)
}

// BitAt reports whether the pixel at (x, y) is inked. Out of range pixels are
// paper.
func (b *Buffer) BitAt(x, y int) bool {
	if !(image.Point{X: x, Y: y}.In(b.Rect)) {
		return false
	}
	i, mask := b.offset(x, y)
	return b.Pix[i]&mask != 0
}

// SetBit sets or clears the pixel at (x, y). Out of range writes are ignored.
func (b *Buffer) SetBit(x, y int, on bool) {
	if !(image.Point{X: x, Y: y}.In(b.Rect)) {
		return
	}
	i, mask := b.offset(x, y)
	if on {
		b.Pix[i] |= mask
	} else {
		b.Pix[i] &^= mask
	}
}

// Fill sets every pixel to on.
func (b *Buffer) Fill(on bool) {
	var v byte
	if on {
		v = 0xFF
	}
	for i := range b.Pix {
		b.Pix[i] = v
	}
}

// Equal reports whether both buffers have the same geometry and content.
func (b *Buffer) Equal(o *Buffer) bool {
	if o == nil {
		return false
	}
	return b.Rect == o.Rect && bytes.Equal(b.Pix, o.Pix)
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	c := &Buffer{
		Pix:    make([]byte, len(b.Pix)),
		Stride: b.Stride,
		Rect:   b.Rect,
	}
	copy(c.Pix, b.Pix)
	return c
}

// offset returns the byte index and bit mask of (x, y); bit 7 is the leftmost
// pixel of a byte.
func (b *Buffer) offset(x, y int) (int, byte) {
	x -= b.Rect.Min.X
	y -= b.Rect.Min.Y
	return y*b.Stride + x/8, byte(0x80 >> uint(x%8))
}
