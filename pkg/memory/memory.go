// Package memory is mali's long-term, scope-partitioned memory.
//
// Memory is split into segments: one global segment readable by every
// caller and one private segment per identity. Each segment is an
// independent vector index opened lazily through a vector.Opener. Source
// texts live in a docstore so a segment can always be rebuilt from disk;
// that is how a single source is forgotten on indexes without delete.
//
// Index failures never fail a read: a segment that cannot be queried
// contributes nothing and the caller still gets an answer. Scope violations
// are always hard errors.
package memory

import (
	"time"

	"github.com/nontawat9304/mali-chat/pkg/docstore"
)

const (
	MetaSource = "source"
	MetaDate   = "date"
	MetaScope  = "scope"

	// DateLayout is the ISO date stamped on every record.
	DateLayout = "2006-01-02"
)

// Record is an immutable memory entry.
type Record struct {
	ID        string
	Text      string
	Source    string
	CreatedAt time.Time
	Scope     ScopeKey
}

// Result is a retrieved memory.
type Result struct {
	Text   string
	Source string

	// Date is the ISO insertion date, empty when the index lost it.
	Date  string
	Scope ScopeKey

	// Score is only comparable within one segment.
	Score float32
}

// SourceText is a retained source used to rebuild a segment.
type SourceText = docstore.SourceText

// Sources is the document store the memory store persists source texts to.
type Sources interface {
	PutFile(segment, filename, text string) error
	Remove(segment, filename string) error
	List(segment string) ([]docstore.SourceText, error)
}
