// Package chromem backs memory segments with chromem-go, an embedded pure Go
// vector database. All segments of one data directory share a DB and each
// segment is a collection inside it.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/nontawat9304/mali-chat/pkg/vector"
)

// OpenDB opens the persistent chromem database rooted at dir. An empty dir
// yields an in-memory database.
func OpenDB(dir string, compress bool) (*chromem.DB, error) {
	if dir == "" {
		return chromem.NewDB(), nil
	}
	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem at %s: %w", vector.ErrConnection, dir, err)
	}
	return db, nil
}

// Driver implements vector.Driver over a single chromem collection.
type Driver struct {
	db      *chromem.DB
	segment string
	logger  *slog.Logger

	mu  sync.RWMutex
	col *chromem.Collection
}

// NewDriver gets or creates the collection for segment inside db.
func NewDriver(db *chromem.DB, segment string, logger *slog.Logger) (*Driver, error) {
	if db == nil {
		return nil, errors.New("chromem database is required")
	}
	if segment == "" {
		return nil, errors.New("chromem segment name is required")
	}

	// embeddings are always supplied by the caller
	col, err := db.GetOrCreateCollection(segment, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", segment, err)
	}

	return &Driver{db: db, segment: segment, col: col, logger: logger}, nil
}

func (d *Driver) collection() *chromem.Collection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.col
}

// Add stores documents, replacing existing IDs.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	col := d.collection()
	for _, doc := range docs {
		err := col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
		})
		if err != nil {
			return fmt.Errorf("adding document %s: %w", doc.ID, err)
		}
	}

	d.logger.Debug("added documents to chromem", "segment", d.segment, "count", len(docs))
	return nil
}

// Query returns up to topK documents by cosine similarity.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	col := d.collection()

	// chromem rejects n greater than the collection size
	n := min(topK, col.Count())
	if n <= 0 {
		return nil, nil
	}

	found, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", d.segment, err)
	}

	results := make([]vector.QueryResult, 0, len(found))
	for _, r := range found {
		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:        r.ID,
				Content:   r.Content,
				Metadata:  r.Metadata,
				Embedding: r.Embedding,
			},
			Score: r.Similarity,
		})
	}
	return results, nil
}

// Delete removes documents by ID.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := d.collection().Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting from %s: %w", d.segment, err)
	}
	return nil
}

// Reset drops the collection and starts it empty.
func (d *Driver) Reset(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.db.DeleteCollection(d.segment); err != nil {
		return fmt.Errorf("dropping %s: %w", d.segment, err)
	}
	col, err := d.db.GetOrCreateCollection(d.segment, nil, nil)
	if err != nil {
		return fmt.Errorf("recreating %s: %w", d.segment, err)
	}
	d.col = col
	return nil
}

// Close is a no-op; the shared DB is owned by whoever opened it.
func (d *Driver) Close() error {
	return nil
}
