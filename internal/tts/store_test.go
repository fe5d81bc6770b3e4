package tts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStoreSaveReturnsServableRef(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	ref, err := store.Save([]byte("mp3-bytes"), "mp3")
	if err != nil {
		t.Fatalf("Failed to save audio: %v", err)
	}

	if !strings.HasPrefix(ref, "/media/audio/tts_") || !strings.HasSuffix(ref, ".mp3") {
		t.Errorf("Unexpected reference format: %s", ref)
	}

	data, err := os.ReadFile(filepath.Join(store.Dir(), filepath.Base(ref)))
	if err != nil {
		t.Fatalf("Saved file not readable: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Errorf("Unexpected file contents: %q", data)
	}
}

func TestStoreSaveUniqueNames(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	a, _ := store.Save([]byte("x"), "mp3")
	b, _ := store.Save([]byte("y"), "mp3")
	if a == b {
		t.Errorf("Expected unique references, got %s twice", a)
	}
}

func TestNewStoreCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "audio")

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if _, err := os.Stat(store.Dir()); err != nil {
		t.Errorf("Store directory should exist: %v", err)
	}
}
