package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"gainfair/internal/config"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.Config{LogLevel: "debug", LogFormat: "json"}, &buf)
	log.Debug().Str("attempt_id", "a1").Msg("flow started")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if line["attempt_id"] != "a1" || line["service"] != "gainfair" || line["level"] != "debug" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestNewWithWriterFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.Config{LogLevel: "loud", LogFormat: "json"}, &buf)
	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line must be filtered at info level, got %q", buf.String())
	}
	log.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Fatalf("expected info line")
	}
}
