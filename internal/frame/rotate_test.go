package frame

import (
	"testing"
)

const (
	logicalW  = 264
	logicalH  = 176
	physicalW = 176
	physicalH = 264
)

func TestPhysicalAddr(t *testing.T) {
	for _, tc := range []struct {
		x, y int
		want Addr
	}{
		// (0,0) lands in the top right corner of the first physical row.
		{0, 0, Addr{Index: 21, Bit: 0}},
		// Bottom left logical pixel is physical (0, 0).
		{0, 175, Addr{Index: 0, Bit: 7}},
		{263, 0, Addr{Index: 263*22 + 21, Bit: 0}},
		{263, 175, Addr{Index: 263 * 22, Bit: 7}},
		{10, 100, Addr{Index: 10*22 + 75/8, Bit: 7 - 75%8}},
	} {
		if got := PhysicalAddr(tc.x, tc.y, logicalH, physicalW); got != tc.want {
			t.Errorf("PhysicalAddr(%d, %d) = %+v, want %+v", tc.x, tc.y, got, tc.want)
		}
	}
}

func TestRotateSweep(t *testing.T) {
	src := New(logicalW, logicalH)
	dst := New(physicalW, physicalH)
	seen := make(map[Addr][2]int, logicalW*logicalH)

	for y := 0; y < logicalH; y++ {
		for x := 0; x < logicalW; x++ {
			src.SetBit(x, y, true)
			err := Rotate(dst, src)
			src.SetBit(x, y, false)
			if err != nil {
				t.Fatalf("Rotate() = %v", err)
			}

			want := PhysicalAddr(x, y, logicalH, physicalW)
			px, py := logicalH-1-y, x
			if want.Index != py*(physicalW/8)+px/8 || want.Bit != uint(7-px%8) {
				t.Fatalf("PhysicalAddr(%d, %d) disagrees with closed form", x, y)
			}

			set := 0
			for i, v := range dst.Pix {
				if v == 0 {
					continue
				}
				if i != want.Index || v != 1<<want.Bit {
					t.Fatalf("(%d, %d): byte %d = %#x, want only byte %d = %#x", x, y, i, v, want.Index, byte(1<<want.Bit))
				}
				set++
			}
			if set != 1 {
				t.Fatalf("(%d, %d): %d bytes set, want 1", x, y, set)
			}

			if prev, dup := seen[want]; dup {
				t.Fatalf("(%d, %d) and (%d, %d) map to the same address %+v", x, y, prev[0], prev[1], want)
			}
			seen[want] = [2]int{x, y}

			if !dst.BitAt(px, py) {
				t.Fatalf("(%d, %d): physical BitAt(%d, %d) = false", x, y, px, py)
			}
		}
	}
	if len(seen) != logicalW*logicalH {
		t.Errorf("%d distinct addresses, want %d", len(seen), logicalW*logicalH)
	}
}

func TestRotateKeepsLength(t *testing.T) {
	src := New(logicalW, logicalH)
	src.Fill(true)
	dst := New(physicalW, physicalH)
	pix := dst.Pix

	if err := Rotate(dst, src); err != nil {
		t.Fatalf("Rotate() = %v", err)
	}
	if dst.Len() != physicalW*physicalH/8 {
		t.Errorf("Len() = %d, want %d", dst.Len(), physicalW*physicalH/8)
	}
	if &dst.Pix[0] != &pix[0] {
		t.Error("Rotate() reallocated the physical frame")
	}
	for i, v := range dst.Pix {
		if v != 0xFF {
			t.Fatalf("Pix[%d] = %#x, want 0xff for an all-ink source", i, v)
		}
	}

	// A second rotation of a blank frame clears stale bits.
	src.Fill(false)
	if err := Rotate(dst, src); err != nil {
		t.Fatalf("Rotate() = %v", err)
	}
	for i, v := range dst.Pix {
		if v != 0 {
			t.Fatalf("Pix[%d] = %#x, want 0 after blank rotation", i, v)
		}
	}
}

func TestRotateGeometryError(t *testing.T) {
	if err := Rotate(New(physicalW, physicalH), New(physicalW, physicalH)); err == nil {
		t.Error("Rotate() with unrotated geometry succeeded")
	}
}
