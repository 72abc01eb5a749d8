package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRunLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	log, path, err := NewRunLogger(dir, "abc123")
	if err != nil {
		t.Fatalf("NewRunLogger() error = %v", err)
	}

	if !strings.HasPrefix(filepath.Base(path), "run-") || !strings.Contains(path, "abc123") {
		t.Errorf("log path = %q, want run-<ts>-abc123.log", path)
	}

	log.Info("cycle starting")
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading run log: %v", err)
	}
	line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])

	// Each line is one self-contained JSON object.
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, line)
	}
	if entry["msg"] != "cycle starting" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["run_id"] != "abc123" {
		t.Errorf("run_id = %v, want abc123", entry["run_id"])
	}
	if entry["ts"] == nil {
		t.Error("log entry missing ts field")
	}
}
