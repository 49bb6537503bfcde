package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if got := parseLevel("nonsense"); got != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", got)
	}
	if got := parseLevel(" WARN "); got != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", got)
	}
}

func TestBuildWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	zl := build(&buf, "info")

	zl.Debug().Msg("hidden")
	zl.Info().Int64("sale_id", 7).Msg("sale created")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "sale created" || entry["sale_id"] != float64(7) {
		t.Fatalf("unexpected entry %v", entry)
	}
}
