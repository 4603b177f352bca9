package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "info", "json")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info().Str("component", "test").Msg("hello")
	out := buf.String()
	if !strings.Contains(out, `"level":"info"`) || !strings.Contains(out, `"message":"hello"`) {
		t.Fatalf("unexpected json output: %q", out)
	}
}

func TestNewWithWriterFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info event should be filtered: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn event missing: %q", out)
	}
}

func TestNewWithWriterConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "debug", "console")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("console output missing message: %q", buf.String())
	}
}

func TestNewRejectsBadInputs(t *testing.T) {
	if _, err := NewWithWriter(&bytes.Buffer{}, "noisy", "json"); err == nil {
		t.Fatal("expected unknown level to fail")
	}
	if _, err := NewWithWriter(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}
