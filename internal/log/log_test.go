package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetupLevels(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want logrus.Level
	}{
		{"default info", Options{}, logrus.InfoLevel},
		{"explicit warn", Options{Level: "warn"}, logrus.WarnLevel},
		{"unknown falls back", Options{Level: "chatty"}, logrus.InfoLevel},
		{"debug overrides", Options{Level: "error", Debug: true}, logrus.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Output = &bytes.Buffer{}
			logger, closer, err := Setup(tt.opts)
			if err != nil {
				t.Fatalf("Setup: %v", err)
			}
			defer closer.Close()
			if logger.GetLevel() != tt.want {
				t.Errorf("level = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := Setup(Options{JSON: true, Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.WithField("provider", "flixhq").Info("attempt finished")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if entry["provider"] != "flixhq" || entry["msg"] != "attempt finished" {
		t.Errorf("entry = %v", entry)
	}
}

func TestSetupFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, closer, err := Setup(Options{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("to file")
	closer.Close()

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("log dir entries = %v, err = %v", entries, err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q", data)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped")
	if logger.IsLevelEnabled(logrus.ErrorLevel) {
		t.Error("discard logger should not enable error level")
	}
}
