// Package docstore owns the source texts behind every memory segment.
//
// Sources are plain files under <root>/<segment>/<name>.txt. Segment indexes
// are always rebuildable from what is on disk here, which is what makes
// forgetting a source possible on backends without incremental delete.
// A training_history.json log at the root records every ingested source.
package docstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gobwas/glob"
)

const (
	// HistoryFile is the ingest log kept at the store root.
	HistoryFile = "training_history.json"

	// DefaultInclude matches the files treated as sources.
	DefaultInclude = "*.txt"

	StatusText   = "Success (Text)"
	StatusFile   = "Success (File)"
	StatusMemory = "Success (Memory)"
)

var (
	// ErrNotFound is returned when a source file does not exist.
	ErrNotFound = errors.New("source not found")

	// ErrInvalidFilename is returned for names that would escape a segment
	// directory or are empty after sanitizing.
	ErrInvalidFilename = errors.New("invalid source filename")
)

// SourceText is one retained source.
type SourceText struct {
	Filename string
	Text     string
	ModTime  time.Time
}

// Store is a file-backed document store.
type Store struct {
	root    string
	include glob.Glob
	logger  *slog.Logger
	now     func() time.Time

	// historyMu serializes read-modify-write of the history file.
	historyMu sync.Mutex

	// own tracks paths this process just wrote so Watch can skip them.
	ownMu sync.Mutex
	own   map[string]time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the clock used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New opens a store rooted at root, creating it if needed. include is a
// glob over file names; empty means DefaultInclude.
func New(root, include string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.New("docstore root is required")
	}
	if include == "" {
		include = DefaultInclude
	}
	g, err := glob.Compile(include)
	if err != nil {
		return nil, fmt.Errorf("compiling include pattern %q: %w", include, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating docstore root: %w", err)
	}

	s := &Store{
		root:    root,
		include: g,
		logger:  logger,
		now:     time.Now,
		own:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// SanitizeFilename keeps letters, digits, space, '-' and '_' from title,
// trims the result and appends ".txt".
func SanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String()) + ".txt"
}

func (s *Store) path(segment, filename string) (string, error) {
	if segment == "" || segment != filepath.Base(segment) || strings.HasPrefix(segment, ".") {
		return "", fmt.Errorf("%w: segment %q", ErrInvalidFilename, segment)
	}
	if filename == "" || filename == ".txt" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	return filepath.Join(s.root, segment, filename), nil
}

// Put stores text under a filename derived from title and returns it.
func (s *Store) Put(segment, title, text string) (string, error) {
	filename := SanitizeFilename(title)
	if err := s.PutFile(segment, filename, text); err != nil {
		return "", err
	}
	return filename, nil
}

// PutFile stores text under filename as given.
func (s *Store) PutFile(segment, filename, text string) error {
	p, err := s.path(segment, filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating segment directory: %w", err)
	}

	s.markOwn(p)
	if err := os.WriteFile(p, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing source %s: %w", filename, err)
	}
	s.logger.Debug("stored source", "segment", segment, "filename", filename, "bytes", len(text))
	return nil
}

// Read returns one source's text.
func (s *Store) Read(segment, filename string) (string, error) {
	p, err := s.path(segment, filename)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, segment, filename)
	}
	if err != nil {
		return "", fmt.Errorf("reading source %s: %w", filename, err)
	}
	return string(raw), nil
}

// Path resolves a source file on disk, for downloads.
func (s *Store) Path(segment, filename string) (string, error) {
	p, err := s.path(segment, filename)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, segment, filename)
	}
	return p, nil
}

// Remove deletes a source. Removing a missing source is not an error.
func (s *Store) Remove(segment, filename string) error {
	p, err := s.path(segment, filename)
	if err != nil {
		return err
	}
	s.markOwn(p)
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing source %s: %w", filename, err)
	}
	return nil
}

// List returns every included source of a segment, sorted by filename.
// Unreadable files are logged and skipped.
func (s *Store) List(segment string) ([]SourceText, error) {
	dir := filepath.Join(s.root, segment)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing segment %s: %w", segment, err)
	}

	var out []SourceText
	for _, e := range entries {
		if e.IsDir() || !s.include.Match(e.Name()) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable source", "segment", segment, "filename", e.Name(), "error", err)
			continue
		}
		var mod time.Time
		if info, err := e.Info(); err == nil {
			mod = info.ModTime()
		}
		out = append(out, SourceText{Filename: e.Name(), Text: string(raw), ModTime: mod})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// Segments lists the segment directories present on disk.
func (s *Store) Segments() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (s *Store) markOwn(p string) {
	s.ownMu.Lock()
	defer s.ownMu.Unlock()
	s.own[p] = time.Now()
}

// wroteRecently reports whether p was written by this process within window,
// pruning stale entries.
func (s *Store) wroteRecently(p string, window time.Duration) bool {
	s.ownMu.Lock()
	defer s.ownMu.Unlock()

	cutoff := time.Now().Add(-window)
	for k, at := range s.own {
		if at.Before(cutoff) {
			delete(s.own, k)
		}
	}
	_, ok := s.own[p]
	return ok
}
