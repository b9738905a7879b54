package logging

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

func TestNew_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("NewWithOutput: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", logger.GetLevel())
	}

	Component(logger, "ingestion").Info("batch stored")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["component"] != "ingestion" || entry["msg"] != "batch stored" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNew_Defaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput(&buf, "", "")
	if err != nil {
		t.Fatalf("NewWithOutput: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New("loud", "text"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
