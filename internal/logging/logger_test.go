package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetWithoutInitializeReturnsNoop(t *testing.T) {
	l := Get(CategoryIndex)
	if l == nil {
		t.Fatal("Get returned nil")
	}
	// Must not panic on a no-op logger
	l.Info("should be dropped")
	l.Error("should be dropped too")
}

func TestInitializeProductionModeCreatesNoLogs(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	Index("this goes nowhere")

	if _, err := os.Stat(filepath.Join(ws, ".gptshell", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not exist in production mode")
	}
}

func TestInitializeDebugModeWritesCategoryFile(t *testing.T) {
	ws := t.TempDir()
	cfgDir := filepath.Join(ws, ".gptshell")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}
	cfg := `{"logging": {"debug_mode": true, "level": "debug"}}`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	Memory("turn saved: session=%s", "abc123")

	entries, err := os.ReadDir(filepath.Join(ws, ".gptshell", "logs"))
	if err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected at least one log file in debug mode")
	}
}

func TestCategoryFilter(t *testing.T) {
	ws := t.TempDir()
	cfgDir := filepath.Join(ws, ".gptshell")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}
	cfg := `{"logging": {"debug_mode": true, "categories": {"index": false, "memory": true}}}`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	if IsCategoryEnabled(CategoryIndex) {
		t.Error("index category should be disabled")
	}
	if !IsCategoryEnabled(CategoryMemory) {
		t.Error("memory category should be enabled")
	}
	// Unlisted categories default to enabled
	if !IsCategoryEnabled(CategoryRetrieval) {
		t.Error("retrieval category should default to enabled")
	}
}
