package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONFileWithBOMRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfg.json")
	in := map[string]any{"enabled": true, "region": "EU"}
	if err := WriteJSONFile(path, in, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(raw) < 3 || raw[0] != 0xEF || raw[1] != 0xBB || raw[2] != 0xBF {
		t.Fatalf("missing BOM: % x", raw[:3])
	}
	var out map[string]any
	if err := ReadJSONFile(path, &out); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if out["region"] != "EU" || out["enabled"] != true {
		t.Fatalf("round trip: %v", out)
	}
}

func TestWriteFileAtomicLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.json")
	if err := WriteFileAtomic(path, []byte("[]")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("[1]")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, got %d entries", len(entries))
	}
	b, _ := os.ReadFile(path)
	if string(b) != "[1]" {
		t.Fatalf("content=%s", b)
	}
}
