package sniff

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExtension_PNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact")
	pngHeader := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	if err := os.WriteFile(path, pngHeader, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ext, ok := Extension(path)
	if !ok {
		t.Fatal("expected a detected extension")
	}
	if ext != ".png" {
		t.Errorf("expected .png, got %q", ext)
	}
}

func TestExtension_MissingFile(t *testing.T) {
	if _, ok := Extension(filepath.Join(t.TempDir(), "absent")); ok {
		t.Error("expected no extension for missing file")
	}
}
