package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriterDropsTime(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelDebug)
	logger.Debug("[BML] entering markup", "pos", 3)

	out := buf.String()
	if strings.Contains(out, "time=") {
		t.Errorf("time key should be removed: %q", out)
	}
	if !strings.Contains(out, "pos=3") {
		t.Errorf("attributes should be kept: %q", out)
	}
}

func TestNewHonorsComponentEnv(t *testing.T) {
	t.Setenv("BEAST_DEBUG_TEST_COMPONENT", "1")
	if !New("BEAST_DEBUG_TEST_COMPONENT").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("component env var should enable debug level")
	}
}
