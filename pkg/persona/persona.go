// Package persona keeps the assistant's persona text in a file. The file is
// read on every call so edits apply to the next turn without a restart.
package persona

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileName is the persona file inside the data directory.
const FileName = "persona.txt"

// Store reads and writes the persona file.
type Store struct {
	path string

	// mu serializes writers; the last Save wins.
	mu sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the trimmed persona text, or "" when no file exists yet.
func (s *Store) Load() (string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading persona: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Save replaces the persona text atomically.
func (s *Store) Save(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating persona directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".persona-*")
	if err != nil {
		return fmt.Errorf("creating persona temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("writing persona: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing persona temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing persona: %w", err)
	}
	return nil
}

// Resolve picks the persona for one turn: the request's own text, then the
// file, then fallback.
func (s *Store) Resolve(requested, fallback string) string {
	if p := strings.TrimSpace(requested); p != "" {
		return p
	}
	if p, err := s.Load(); err == nil && p != "" {
		return p
	}
	return fallback
}
