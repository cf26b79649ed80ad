package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestFormatterHandlerUsesFormatter(t *testing.T) {
	var buf bytes.Buffer
	h := NewFormatterHandler(&buf, &JSONFormatter{}, slog.LevelInfo)
	l := NewWithHandler(h)

	l.Info("frame decoded", "code", 0)

	out := buf.String()
	if !strings.Contains(out, `"msg":"frame decoded"`) {
		t.Errorf("output missing expected JSON message: %s", out)
	}
	if !strings.Contains(out, `"code":0`) {
		t.Errorf("output missing field: %s", out)
	}
}

func TestFormatterHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewFormatterHandler(&buf, &TextFormatter{}, slog.LevelWarn)
	l := NewWithHandler(h)

	l.Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("Info below the handler's level should produce no output, got %q", buf.String())
	}

	l.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("Warn at the handler's level should appear, got %q", buf.String())
	}
}

func TestFormatterHandlerKeepsWithAttrsAndModule(t *testing.T) {
	var buf bytes.Buffer
	h := NewFormatterHandler(&buf, &JSONFormatter{}, slog.LevelInfo)
	l := NewWithHandler(h).With("peer", "abc").Module("rlpx")

	l.Info("active")

	out := buf.String()
	if !strings.Contains(out, `"module":"rlpx"`) {
		t.Errorf("output missing module attr: %s", out)
	}
	if !strings.Contains(out, `"peer":"abc"`) {
		t.Errorf("output missing peer attr: %s", out)
	}
}
