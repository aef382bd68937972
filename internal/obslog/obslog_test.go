package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mod.log")
	logger, err := Build(Options{Level: "debug", File: true, FilePath: path, Format: "json"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	logger.Info("pending_added")
	_ = logger.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "pending_added") {
		t.Fatalf("log file missing entry: %s", b)
	}
}

func TestReplaceRestores(t *testing.T) {
	before := L()
	restore := Replace(nil)
	if L() == before {
		t.Fatalf("expected logger swap")
	}
	restore()
	if L() != before {
		t.Fatalf("expected logger restore")
	}
}
