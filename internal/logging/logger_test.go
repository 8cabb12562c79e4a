package logging_test

import (
	"bytes"
	"strings"
	"testing"

	"tilexfer/internal/logging"
)

func TestConsoleHandlerFormatsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logging.NewComponentLogger(logger, "worker").Info("claimed batch",
		logging.Int("count", 3),
		logging.String(logging.FieldWorkerID, "w-1"),
	)

	line := buf.String()
	if !strings.Contains(line, "INFO worker: claimed batch") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "count=3") || !strings.Contains(line, "worker_id=w-1") {
		t.Fatalf("missing attrs: %q", line)
	}
}

func TestConsoleHandlerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("expected info suppressed, got %q", buf.String())
	}
	logger.Warn("loud")
	if !strings.Contains(buf.String(), "WARN loud") {
		t.Fatalf("expected warn logged, got %q", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hello")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("unexpected json output: %q", buf.String())
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
