package frame

import "fmt"

// Addr is the physical byte index and bit number of a pixel.
type Addr struct {
	Index int
	Bit   uint
}

// PhysicalAddr returns where the logical pixel (x, y) lands in a physical
// frame of the given width after a 90° clockwise rotation:
//
//	px = logicalHeight - 1 - y
//	py = x
//	index = py*(physicalWidth/8) + px/8, bit = 7 - px%8
func PhysicalAddr(x, y, logicalHeight, physicalWidth int) Addr {
	px := logicalHeight - 1 - y
	py := x
	return Addr{
		Index: py*(physicalWidth/8) + px/8,
		Bit:   uint(7 - px%8),
	}
}

// CheckRotation verifies that logical can be rotated onto physical: the
// rotation swaps axes so logical height must equal physical width and logical
// width must equal physical height.
func CheckRotation(logical, physical *Buffer) error {
	if logical.Height() != physical.Width() || logical.Width() != physical.Height() {
		return fmt.Errorf("%w: logical %dx%d cannot rotate onto physical %dx%d",
			ErrGeometry, logical.Width(), logical.Height(), physical.Width(), physical.Height())
	}
	if physical.Width()%8 != 0 {
		return fmt.Errorf("%w: physical width %d is not byte aligned", ErrGeometry, physical.Width())
	}
	return nil
}

// Rotate writes src rotated 90° clockwise into dst. dst is cleared first, so
// every bit not set by an inked source pixel is paper.
func Rotate(dst, src *Buffer) error {
	if err := CheckRotation(src, dst); err != nil {
		return err
	}
	dst.Fill(false)

	lw, lh := src.Width(), src.Height()
	pw := dst.Width()
	for y := 0; y < lh; y++ {
		row := src.Pix[y*src.Stride : (y+1)*src.Stride]
		for bx, v := range row {
			if v == 0 {
				continue
			}
			for bit := 0; bit < 8; bit++ {
				x := bx*8 + bit
				if x >= lw {
					break
				}
				if v&(0x80>>uint(bit)) == 0 {
					continue
				}
				a := PhysicalAddr(x, y, lh, pw)
				dst.Pix[a.Index] |= 1 << a.Bit
			}
		}
	}
	return nil
}
