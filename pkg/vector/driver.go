// Package vector defines the index capability behind one memory segment.
//
// A segment is an independent nearest-neighbour index: documents go in with
// a precomputed embedding, queries come back ranked by the backend's own
// score. Implementations live in subpackages (chromem, sqlitevec, qdrant,
// chroma); vectorutils picks one from configuration.
package vector

import "context"

// Document is one indexed text with its embedding and string metadata.
type Document struct {
	// ID is unique within the segment.
	ID string

	// Content is the indexed source text.
	Content string

	// Metadata carries source, date and scope labels.
	Metadata map[string]string

	// Embedding is the vector representation of Content.
	Embedding []float32
}

// QueryResult is a ranked match.
type QueryResult struct {
	Document

	// Score is backend specific; higher means more similar. Scores from
	// different segments are not comparable.
	Score float32
}

// Driver is a single segment index.
type Driver interface {
	// Add stores documents. Existing IDs are replaced.
	Add(ctx context.Context, docs []Document) error

	// Query returns up to topK documents closest to embedding. An empty
	// segment yields no results and no error.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Delete removes documents by ID.
	Delete(ctx context.Context, ids []string) error

	// Reset drops every document in the segment.
	Reset(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error
}

// Opener opens the driver backing a named segment.
type Opener func(ctx context.Context, segment string) (Driver, error)
