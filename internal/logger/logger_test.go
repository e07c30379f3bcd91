package logger

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNamedLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	defer SetLevel("info")

	SetLevel("warn")
	buf.Reset()

	l := Named("session")
	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)
	l.Errorf("always %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "[WARN] session: shown 2") {
		t.Errorf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] session: always 3") {
		t.Errorf("missing error line: %q", out)
	}
}
