package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONLoggerAddsServiceAndRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, "worker", "info")

	logger.Info("categorize.retry", "document_id", "doc-1", "raw_response", "password: hunter2")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if record["service"] != "worker" || record["msg"] != "categorize.retry" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record["raw_response"] != "[redacted]" {
		t.Fatalf("expected raw_response redacted, got %v", record["raw_response"])
	}
	if record["document_id"] != "doc-1" {
		t.Fatalf("expected document_id kept, got %v", record["document_id"])
	}
}

func TestJSONLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, "api", "warn")

	logger.Info("http_request")
	if buf.Len() != 0 {
		t.Fatalf("expected info suppressed at warn level, got %s", buf.String())
	}
	logger.Warn("http_request")
	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Fatalf("expected warn record, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
