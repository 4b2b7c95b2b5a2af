// Package inmemory is a process-local storage driver, used by default and in tests.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/nontawat9304/mali-chat/pkg/history"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	"github.com/nontawat9304/mali-chat/pkg/storage"
)

// Driver implements storage.Driver with maps.
type Driver struct {
	mu       sync.RWMutex
	turns    map[memory.Identity][]history.Turn
	profiles map[memory.Identity]storage.Profile
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		turns:    make(map[memory.Identity][]history.Turn),
		profiles: make(map[memory.Identity]storage.Profile),
	}
}

func (d *Driver) AppendTurn(_ context.Context, identity memory.Identity, turn history.Turn) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.turns[identity] = append(d.turns[identity], turn)
	return nil
}

func (d *Driver) RecentTurns(_ context.Context, identity memory.Identity, n int) ([]history.Turn, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	all := d.turns[identity]
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]history.Turn, n)
	copy(out, all[len(all)-n:])
	return out, nil
}

func (d *Driver) GetProfile(_ context.Context, identity memory.Identity) (storage.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.profiles[identity]
	if !ok {
		return storage.Profile{}, storage.NotFoundError{Identity: identity}
	}
	return p, nil
}

func (d *Driver) SetProfile(_ context.Context, p storage.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.Identity] = p
	return nil
}

func (d *Driver) Close() error {
	return nil
}

var _ storage.Driver = (*Driver)(nil)
