package tui

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintBanner_PlainWriter(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Errorf("banner written to a buffer contains escape codes: %q", out)
	}
	if got := strings.Count(out, "\n"); got != len(bannerLines)+2 {
		t.Errorf("banner has %d lines, want %d", got, len(bannerLines)+2)
	}
}
