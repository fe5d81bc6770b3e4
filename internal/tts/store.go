package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes synthesized audio into the media directory and hands back the
// URL path it is served under.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating the directory if needed
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes audio bytes and returns the public reference path
func (s *Store) Save(data []byte, ext string) (string, error) {
	filename := fmt.Sprintf("tts_%s.%s", uuid.New().String()[:8], strings.ToLower(ext))
	path := filepath.Join(s.dir, filename)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}

	return "/media/audio/" + filename, nil
}

// Dir returns the directory audio files are written to
func (s *Store) Dir() string {
	return s.dir
}
