package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// ownWriteWindow hides events caused by this process's own writes.
	ownWriteWindow = 2 * time.Second

	watchDebounce = 500 * time.Millisecond
)

// Watch calls fn with a segment name whenever included files in that
// segment change outside this process. Bursts are debounced per segment.
// It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func(segment string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating source watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.root); err != nil {
		return fmt.Errorf("watching %s: %w", s.root, err)
	}
	segments, err := s.Segments()
	if err != nil {
		return err
	}
	for _, seg := range segments {
		if err := watcher.Add(filepath.Join(s.root, seg)); err != nil {
			return fmt.Errorf("watching segment %s: %w", seg, err)
		}
	}

	var (
		mu     sync.Mutex
		timers = map[string]*time.Timer{}
	)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, t := range timers {
			t.Stop()
		}
	}()

	schedule := func(segment string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[segment]; ok {
			t.Reset(watchDebounce)
			return
		}
		timers[segment] = time.AfterFunc(watchDebounce, func() {
			mu.Lock()
			delete(timers, segment)
			mu.Unlock()
			if ctx.Err() == nil {
				fn(segment)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(watcher, event, schedule)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("source watcher error", "error", err)
		}
	}
}

func (s *Store) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, schedule func(string)) {
	dir, name := filepath.Split(filepath.Clean(event.Name))
	dir = filepath.Clean(dir)

	// new segment directory
	if dir == filepath.Clean(s.root) {
		if event.Op&fsnotify.Create != 0 {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := watcher.Add(event.Name); err != nil {
					s.logger.Warn("watching new segment failed", "segment", name, "error", err)
				}
			}
		}
		return
	}

	if filepath.Dir(dir) != filepath.Clean(s.root) || !s.include.Match(name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if s.wroteRecently(filepath.Clean(event.Name), ownWriteWindow) {
		return
	}

	segment := filepath.Base(dir)
	s.logger.Debug("source changed", "segment", segment, "filename", name, "op", event.Op.String())
	schedule(segment)
}
