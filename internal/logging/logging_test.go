package logging_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kalshidune/internal/logging"
)

func TestSetup_CreatesDatedLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	log, err := logging.Setup(dir)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	log.Info("pipeline starting")

	name := fmt.Sprintf("pipeline_%s.log", time.Now().Format("20060102"))
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("expected log file %s: %v", name, err)
	}
	if !strings.Contains(string(data), "pipeline starting") {
		t.Errorf("expected the message in the log file, got %q", data)
	}
}

func TestSetup_AppendsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	first, err := logging.Setup(dir)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	first.Info("run one")

	second, err := logging.Setup(dir)
	if err != nil {
		t.Fatalf("setup again: %v", err)
	}
	second.Info("run two")

	name := fmt.Sprintf("pipeline_%s.log", time.Now().Format("20060102"))
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "run one") || !strings.Contains(string(data), "run two") {
		t.Errorf("expected both runs appended to one file, got %q", data)
	}
}
