package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/config"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.Logging{Format: "json", Level: "warn"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	matcher := Component(logger, "matcher")
	matcher.Info().Msg("hidden")
	matcher.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, `"component":"matcher"`) || !strings.Contains(out, "shown") {
		t.Fatalf("expected component warn line, got %s", out)
	}
}

func TestNewWithWriterRejectsLevel(t *testing.T) {
	if _, err := NewWithWriter(config.Logging{Format: "json", Level: "chatty"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestGormLoggerTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewGormLogger(zerolog.New(&buf))
	sql := func() (string, int64) { return "SELECT 1", 1 }

	logger.Trace(context.Background(), time.Now(), sql, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast successful query should not log: %s", buf.String())
	}

	logger.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	if !strings.Contains(buf.String(), "query failed") {
		t.Fatalf("expected failure line, got %s", buf.String())
	}

	buf.Reset()
	logger.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	if !strings.Contains(buf.String(), "slow query") {
		t.Fatalf("expected slow query line, got %s", buf.String())
	}
}
