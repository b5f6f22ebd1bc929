package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetLevel(LevelInfo)

	SetLevel(LevelWarn)
	Debug("debug line")
	Info("info line")
	Warn("warn line", "timeout", "15s")
	Error("error line", errors.New("boom"), "cmd", 4)

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("lines below WARN were written:\n%s", out)
	}
	if !strings.Contains(out, "[WARN] warn line timeout=15s") {
		t.Errorf("missing warn line:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR] error line err=boom cmd=4") {
		t.Errorf("missing error line:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	} {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestFormatKVsOddCount(t *testing.T) {
	if got := formatKVs("a", 1, "dangling"); got != " a=1" {
		t.Errorf("formatKVs() = %q", got)
	}
}
