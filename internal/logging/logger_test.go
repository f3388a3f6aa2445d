package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandlerFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Info("encode finished",
		String(FieldComponent, "encoder"),
		String("output", "/tmp/out.webm"),
		Int("progress", 100),
	)

	line := buf.String()
	if !strings.Contains(line, "INFO encoder: encode finished") {
		t.Fatalf("unexpected console line: %q", line)
	}
	if !strings.Contains(line, "output=/tmp/out.webm") {
		t.Fatalf("expected output attr in line: %q", line)
	}
	if !strings.Contains(line, "progress=100") {
		t.Fatalf("expected progress attr in line: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Warn("encode failed", Error(errors.New("ffmpeg exited with status 1")))

	line := buf.String()
	if !strings.Contains(line, `error="ffmpeg exited with status 1"`) {
		t.Fatalf("expected quoted error value, got %q", line)
	}
}

func TestConsoleHandlerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info record to be dropped, got %q", buf.String())
	}
	logger.Warn("should be kept")
	if buf.Len() == 0 {
		t.Fatal("expected warn record to be written")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewComponentLoggerNilBase(t *testing.T) {
	logger := NewComponentLogger(nil, "store")
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	// Must not panic and must stay silent.
	logger.Info("noop")
}

func TestNoopHandlerDiscards(t *testing.T) {
	if (NoopHandler{}).Enabled(context.Background(), slog.LevelError) {
		t.Fatal("noop handler should never be enabled")
	}
}
