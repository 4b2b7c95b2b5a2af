package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// HistoryEntry records one ingested source.
type HistoryEntry struct {
	Filename      string `json:"filename"`
	OriginalTitle string `json:"original_title,omitempty"`
	Scope         string `json:"scope"`
	Timestamp     string `json:"timestamp"`
	Status        string `json:"status"`
}

func (s *Store) historyPath() string {
	return filepath.Join(s.root, HistoryFile)
}

// History returns the ingest log, oldest first.
func (s *Store) History() ([]HistoryEntry, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	return s.readHistory()
}

func (s *Store) readHistory() ([]HistoryEntry, error) {
	raw, err := os.ReadFile(s.historyPath())
	if errors.Is(err, fs.ErrNotExist) {
		return []HistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	var entries []HistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}
	return entries, nil
}

func (s *Store) writeHistory(entries []HistoryEntry) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := os.WriteFile(s.historyPath(), raw, 0o644); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}

// RecordHistory appends an entry stamped with the store clock.
func (s *Store) RecordHistory(segment, filename, title, status string) (HistoryEntry, error) {
	entry := HistoryEntry{
		Filename:      filename,
		OriginalTitle: title,
		Scope:         segment,
		Timestamp:     s.now().Format(time.RFC3339),
		Status:        status,
	}

	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	entries, err := s.readHistory()
	if err != nil {
		return HistoryEntry{}, err
	}
	return entry, s.writeHistory(append(entries, entry))
}

// ForgetHistory drops every entry for filename in segment.
func (s *Store) ForgetHistory(segment, filename string) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	entries, err := s.readHistory()
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(entries, func(e HistoryEntry) bool {
		return e.Filename == filename && e.Scope == segment
	})
	return s.writeHistory(kept)
}
