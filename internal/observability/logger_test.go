package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/analystproxy/analystproxy/internal/config"
)

func testLoggerConfig(jsonOutput bool) config.Config {
	cfg := config.Config{Profile: config.Profile("test")}
	cfg.Service.Name = "analyst-api"
	cfg.Analyst.Backend = "stub"
	cfg.Observability.LogJSON = jsonOutput
	cfg.Observability.LogLevel = slog.LevelInfo
	return cfg
}

func TestNewLoggerAttachesServiceAndBackends(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(testLoggerConfig(true), &buf)
	logger.Info("started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v (%s)", err, buf.String())
	}
	want := map[string]string{
		"service":          "analyst-api",
		"profile":          "test",
		"backend":          "stub",
		"snapshot_backend": "none",
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("%s = %#v, want %q", key, record[key], value)
		}
	}
}

func TestNewLoggerTextOutputAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(testLoggerConfig(false), &buf)
	logger.Debug("hidden")
	logger.Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record leaked at info level: %s", out)
	}
	if !strings.Contains(out, "msg=visible") || !strings.Contains(out, "backend=stub") {
		t.Fatalf("unexpected text output: %s", out)
	}
}

func TestWithTraceIDAnnotatesOnlyTracedContexts(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(testLoggerConfig(false), &buf)

	WithTraceID(context.Background(), logger).Info("untraced")
	if strings.Contains(buf.String(), "trace_id=") {
		t.Fatalf("untraced record has trace id: %s", buf.String())
	}

	buf.Reset()
	ctx := ContextWithTraceID(context.Background(), "trace-7")
	WithTraceID(ctx, logger).Info("traced")
	if !strings.Contains(buf.String(), "trace_id=trace-7") {
		t.Fatalf("traced record missing trace id: %s", buf.String())
	}
}
