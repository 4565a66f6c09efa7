package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redactedKeys are replaced before a record reaches the sink.
var redactedKeys = map[string]struct{}{
	"raw_text":     {},
	"raw_response": {},
	"api_key":      {},
}

func NewJSONLogger(service, level string) *slog.Logger {
	return newJSONLogger(os.Stdout, service, level)
}

func newJSONLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: redactAttr,
	})
	return slog.New(handler).With("service", service)
}

func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	if _, ok := redactedKeys[attr.Key]; ok {
		return slog.String(attr.Key, "[redacted]")
	}
	return attr
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
