// Package history keeps a short, bounded window of recent turns per
// identity. It is in-memory only; durable transcripts live in pkg/storage
// and can seed a bucket through Warm.
package history

import (
	"sync"
	"time"

	"github.com/nontawat9304/mali-chat/pkg/memory"
)

// DefaultCapacity is the number of turns kept per identity.
const DefaultCapacity = 10

// Role of a turn's speaker.
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"

	// System turns are notes to the model, e.g. a recorded memory.
	System Role = "system"
)

// Turn is one line of dialogue.
type Turn struct {
	Role      Role            `json:"role"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
	Identity  memory.Identity `json:"identity,omitempty"`
}

type bucket struct {
	mu     sync.Mutex
	turns  []Turn
	warmed bool
}

// Buffer is a per-identity FIFO of turns. Anonymous callers share one
// bucket.
type Buffer struct {
	capacity int

	mu      sync.Mutex
	buckets map[memory.Identity]*bucket
}

// NewBuffer creates a buffer holding capacity turns per identity. A
// non-positive capacity uses DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		buckets:  make(map[memory.Identity]*bucket),
	}
}

func (b *Buffer) bucket(id memory.Identity) *bucket {
	b.mu.Lock()
	defer b.mu.Unlock()

	bk, ok := b.buckets[id]
	if !ok {
		bk = &bucket{turns: make([]Turn, 0, b.capacity)}
		b.buckets[id] = bk
	}
	return bk
}

// Append adds turns in order, dropping the oldest beyond capacity.
func (b *Buffer) Append(id memory.Identity, turns ...Turn) {
	bk := b.bucket(id)
	bk.mu.Lock()
	defer bk.mu.Unlock()

	bk.warmed = true
	bk.turns = append(bk.turns, turns...)
	if over := len(bk.turns) - b.capacity; over > 0 {
		bk.turns = append(bk.turns[:0], bk.turns[over:]...)
	}
}

// Recent returns up to n most recent turns, oldest first.
func (b *Buffer) Recent(id memory.Identity, n int) []Turn {
	bk := b.bucket(id)
	bk.mu.Lock()
	defer bk.mu.Unlock()

	if n <= 0 {
		return nil
	}
	start := max(len(bk.turns)-n, 0)
	out := make([]Turn, len(bk.turns)-start)
	copy(out, bk.turns[start:])
	return out
}

// Warm seeds a bucket that has seen no turns yet, typically from durable
// transcripts after a restart. It reports whether it seeded.
func (b *Buffer) Warm(id memory.Identity, turns []Turn) bool {
	bk := b.bucket(id)
	bk.mu.Lock()
	defer bk.mu.Unlock()

	if bk.warmed {
		return false
	}
	bk.warmed = true
	if over := len(turns) - b.capacity; over > 0 {
		turns = turns[over:]
	}
	bk.turns = append(bk.turns[:0], turns...)
	return true
}

// Warmed reports whether id's bucket has been seeded or written.
func (b *Buffer) Warmed(id memory.Identity) bool {
	bk := b.bucket(id)
	bk.mu.Lock()
	defer bk.mu.Unlock()
	return bk.warmed
}

// Capacity returns the per-identity turn limit.
func (b *Buffer) Capacity() int {
	return b.capacity
}
