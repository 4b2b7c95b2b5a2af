// Package chroma backs a memory segment with a Chroma collection over its
// REST API. Each segment maps to its own collection.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nontawat9304/mali-chat/pkg/vector"
)

const (
	// CollectionPrefix namespaces mali collections inside a shared Chroma.
	CollectionPrefix = "mali_"

	basePath = "/api/v2/tenants/default_tenant/databases/default_database/collections"

	defaultMaxRetries    = 3
	defaultRetryDelay    = 500 * time.Millisecond
	defaultMaxRetryDelay = 5 * time.Second
)

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL        string
	collectionName string
	collectionID   string
	httpClient     *http.Client
	logger         *slog.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g. "http://localhost:8000").
	URL string

	// Segment is the memory segment name; the collection is CollectionPrefix+Segment.
	Segment string

	// MaxRetries bounds connection attempts while Chroma is starting.
	MaxRetries int

	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewDriver connects to Chroma and gets or creates the segment collection,
// retrying with exponential backoff.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, errors.New("chroma URL is required")
	}
	if c.Segment == "" {
		return nil, errors.New("chroma segment name is required")
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = defaultMaxRetryDelay
	}

	d := &Driver{
		baseURL:        c.URL,
		collectionName: CollectionPrefix + c.Segment,
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		logger:         logger,
	}

	var (
		err   error
		delay = c.RetryDelay
	)
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		d.collectionID, err = d.getOrCreateCollection(context.Background())
		if err == nil {
			break
		}
		logger.Warn("chroma not ready", "attempt", attempt, "error", err)
		if attempt == c.MaxRetries {
			return nil, fmt.Errorf("%w: collection %q after %d attempts: %w", vector.ErrConnection, d.collectionName, attempt, err)
		}
		time.Sleep(delay)
		delay = min(delay*2, c.MaxRetryDelay)
	}

	logger.Debug("connected to chroma", "url", c.URL, "collection", d.collectionName, "collection_id", d.collectionID)
	return d, nil
}

func (d *Driver) do(ctx context.Context, method, path string, body any, out any, ok ...int) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if len(ok) == 0 {
		ok = []int{http.StatusOK, http.StatusCreated}
	}
	accepted := false
	for _, code := range ok {
		if resp.StatusCode == code {
			accepted = true
			break
		}
	}
	if !accepted {
		raw, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: string(raw)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("chroma status %d: %s", e.code, e.body)
}

func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	var col chromaCollection
	err := d.do(ctx, http.MethodGet, basePath+"/"+d.collectionName, nil, &col, http.StatusOK)
	if err == nil {
		return col.ID, nil
	}

	if err := d.do(ctx, http.MethodPost, basePath, map[string]string{"name": d.collectionName}, &col); err != nil {
		return "", fmt.Errorf("creating collection: %w", err)
	}
	return col.ID, nil
}

// Add stores documents with their content and metadata.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	req := chromaAddRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]string, len(docs)),
		Documents:  make([]string, len(docs)),
	}
	for i, doc := range docs {
		req.IDs[i] = doc.ID
		req.Embeddings[i] = doc.Embedding
		req.Metadatas[i] = doc.Metadata
		req.Documents[i] = doc.Content
	}

	// upsert keeps Add's replace semantics
	if err := d.do(ctx, http.MethodPost, basePath+"/"+d.collectionID+"/upsert", req, nil); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	d.logger.Debug("added documents to chroma", "collection", d.collectionName, "count", len(docs))
	return nil
}

// Query finds the topK documents closest to embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	var resp chromaQueryResponse
	err := d.do(ctx, http.MethodPost, basePath+"/"+d.collectionID+"/query", chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"documents", "metadatas", "distances"},
	}, &resp, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}

	if len(resp.IDs) == 0 {
		return nil, nil
	}

	results := make([]vector.QueryResult, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		r := vector.QueryResult{Document: vector.Document{ID: id}}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) && resp.Documents[0][i] != nil {
			r.Content = *resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Score = 1.0 / (1.0 + resp.Distances[0][i])
		}
		results = append(results, r)
	}
	return results, nil
}

// Delete removes documents by ID.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := d.do(ctx, http.MethodPost, basePath+"/"+d.collectionID+"/delete", chromaDeleteRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// Reset drops and recreates the collection.
func (d *Driver) Reset(ctx context.Context) error {
	err := d.do(ctx, http.MethodDelete, basePath+"/"+d.collectionName, nil, nil, http.StatusOK, http.StatusNoContent)
	var se *statusError
	if err != nil && !(errors.As(err, &se) && se.code == http.StatusNotFound) {
		return fmt.Errorf("dropping collection: %w", err)
	}

	id, err := d.getOrCreateCollection(ctx)
	if err != nil {
		return err
	}
	d.collectionID = id
	return nil
}

// Close is a no-op; the HTTP client needs no cleanup.
func (d *Driver) Close() error {
	return nil
}
