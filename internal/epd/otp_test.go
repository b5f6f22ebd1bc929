package epd

import (
	"errors"
	"testing"
)

// fakeOTP serves reads from mem; the first read after the command is a dummy.
type fakeOTP struct {
	mem     []byte
	cmds    []byte
	reads   int
	failCmd error
	failAt  int
}

func (f *fakeOTP) command(cmd byte) error {
	f.cmds = append(f.cmds, cmd)
	return f.failCmd
}

func (f *fakeOTP) read() (byte, error) {
	n := f.reads
	f.reads++
	if f.failAt > 0 && n == f.failAt {
		return 0, errors.New("spi: short read")
	}
	if n == 0 {
		return 0xFF, nil
	}
	return f.mem[n-1], nil
}

func otpImage(marker byte, at uint16, psr PanelSettings) []byte {
	mem := make([]byte, 0x2000)
	mem[0] = marker
	mem[at] = psr[0]
	mem[at+1] = psr[1]
	return mem
}

func TestReadOTP(t *testing.T) {
	for _, tc := range []struct {
		name      string
		mem       []byte
		want      PanelSettings
		wantReads int
	}{
		{
			name:      "bank 0",
			mem:       otpImage(0xA5, 0x0FB4, PanelSettings{0xCF, 0x89}),
			want:      PanelSettings{0xCF, 0x89},
			wantReads: 0x0FB4 + 3,
		},
		{
			name:      "bank 1",
			mem:       otpImage(0x00, 0x1FB4, PanelSettings{0x4F, 0x8D}),
			want:      PanelSettings{0x4F, 0x8D},
			wantReads: 0x1FB4 + 3,
		},
		{
			name:      "any other marker selects bank 1",
			mem:       otpImage(0xA4, 0x1FB4, PanelSettings{0x0F, 0x0D}),
			want:      PanelSettings{0x0F, 0x0D},
			wantReads: 0x1FB4 + 3,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeOTP{mem: tc.mem}
			got, err := readOTP(f)
			if err != nil {
				t.Fatalf("readOTP() = %v", err)
			}
			if got != tc.want {
				t.Errorf("readOTP() = %s, want %s", got, tc.want)
			}
			if f.reads != tc.wantReads {
				t.Errorf("readOTP() did %d reads, want %d", f.reads, tc.wantReads)
			}
			if len(f.cmds) != 1 || f.cmds[0] != cmdReadOTP {
				t.Errorf("commands = % x, want a2", f.cmds)
			}
		})
	}
}

func TestReadOTPErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		otp  *fakeOTP
	}{
		{"command", &fakeOTP{mem: otpImage(0xA5, 0x0FB4, PanelSettings{1, 2}), failCmd: errors.New("nack")}},
		{"marker", &fakeOTP{mem: otpImage(0xA5, 0x0FB4, PanelSettings{1, 2}), failAt: 1}},
		{"advance", &fakeOTP{mem: otpImage(0xA5, 0x0FB4, PanelSettings{1, 2}), failAt: 100}},
		{"psr", &fakeOTP{mem: otpImage(0xA5, 0x0FB4, PanelSettings{1, 2}), failAt: 0x0FB4 + 2}},
		{"all zeros", &fakeOTP{mem: make([]byte, 0x2000)}},
		{"all ones", &fakeOTP{mem: otpImage(0xFF, 0x1FB4, PanelSettings{0xFF, 0xFF})}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := readOTP(tc.otp); !errors.Is(err, ErrCalibration) {
				t.Errorf("readOTP() = %v, want ErrCalibration", err)
			}
		})
	}
}
