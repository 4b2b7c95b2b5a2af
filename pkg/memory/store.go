package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nontawat9304/mali-chat/pkg/embeddings"
	"github.com/nontawat9304/mali-chat/pkg/vector"
)

const (
	// rebuildConcurrency bounds parallel embedding calls during a rebuild.
	rebuildConcurrency = 4

	defaultOpenTimeout = 10 * time.Second
	defaultOpenRetry   = 5 * time.Second
)

// segment guards one index. mu orders writes against reads; openMu covers
// the lazy open so a slow backend only stalls callers of this segment.
// Lock order is mu, then openMu.
type segment struct {
	mu sync.RWMutex

	openMu   sync.Mutex
	driver   vector.Driver
	openErr  error
	failedAt time.Time
}

// Store is the scoped memory store.
type Store struct {
	open     vector.Opener
	embedder embeddings.Embedder
	sources  Sources
	logger   *slog.Logger
	now      func() time.Time

	openTimeout time.Duration
	openRetry   time.Duration

	mu       sync.Mutex
	segments map[string]*segment
}

// Option configures a Store.
type Option func(*Store)

// WithSources persists source texts so segments can be rebuilt.
func WithSources(s Sources) Option {
	return func(st *Store) { st.sources = s }
}

// WithClock injects the clock used for record dates.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// WithOpenPolicy bounds each segment open by timeout and, after a failed
// open, answers from the cached error for retry before trying again.
func WithOpenPolicy(timeout, retry time.Duration) Option {
	return func(st *Store) {
		st.openTimeout = timeout
		st.openRetry = retry
	}
}

// NewStore builds a store over an index opener and an embedder.
func NewStore(open vector.Opener, embedder embeddings.Embedder, logger *slog.Logger, opts ...Option) (*Store, error) {
	if open == nil || embedder == nil {
		return nil, ErrNotConfigured
	}
	s := &Store{
		open:     open,
		embedder: embedder,
		logger:   logger,
		now:      time.Now,
		segments: make(map[string]*segment),

		openTimeout: defaultOpenTimeout,
		openRetry:   defaultOpenRetry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// segment returns the entry for scope. It does no I/O.
func (s *Store) segment(scope ScopeKey) *segment {
	name := scope.Segment()

	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.segments[name]
	if !ok {
		seg = &segment{}
		s.segments[name] = seg
	}
	return seg
}

// index returns seg's driver, opening it on first use. A failed open is
// remembered for openRetry so a dead backend is not dialled on every turn.
func (s *Store) index(ctx context.Context, seg *segment, scope ScopeKey) (vector.Driver, error) {
	seg.openMu.Lock()
	defer seg.openMu.Unlock()

	name := scope.Segment()
	if seg.driver != nil {
		return seg.driver, nil
	}
	if seg.openErr != nil && time.Since(seg.failedAt) < s.openRetry {
		return nil, fmt.Errorf("%w: segment %s: %w", ErrIndexUnavailable, name, seg.openErr)
	}

	octx, cancel := context.WithTimeout(ctx, s.openTimeout)
	defer cancel()

	driver, err := s.open(octx, name)
	if err != nil {
		seg.openErr, seg.failedAt = err, time.Now()
		return nil, fmt.Errorf("%w: opening segment %s: %w", ErrIndexUnavailable, name, err)
	}
	seg.driver, seg.openErr = driver, nil
	return driver, nil
}

func (s *Store) document(id, text, source string, created time.Time, scope ScopeKey, emb []float32) vector.Document {
	return vector.Document{
		ID:      id,
		Content: text,
		Metadata: map[string]string{
			MetaSource: source,
			MetaDate:   created.Format(DateLayout),
			MetaScope:  scope.Segment(),
		},
		Embedding: emb,
	}
}

// Insert remembers text under scope. source names the retained source file.
// The source is written before anything is embedded: when the index cannot
// take the record, Insert returns the record together with an error
// wrapping ErrIndexUnavailable and a rebuild of the scope recovers it.
func (s *Store) Insert(ctx context.Context, text, source string, scope ScopeKey, caller Caller) (Record, error) {
	if err := caller.CanWrite(scope); err != nil {
		return Record{}, err
	}
	if text == "" {
		return Record{}, errors.New("memory text is empty")
	}

	rec := Record{
		ID:        ulid.Make().String(),
		Text:      text,
		Source:    source,
		CreatedAt: s.now(),
		Scope:     scope,
	}

	seg := s.segment(scope)
	seg.mu.Lock()
	defer seg.mu.Unlock()

	retained := Record{}
	if s.sources != nil && source != "" {
		if err := s.sources.PutFile(scope.Segment(), source, text); err != nil {
			return Record{}, fmt.Errorf("retaining source: %w", err)
		}
		retained = rec
	}

	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return retained, fmt.Errorf("%w: embedding: %w", ErrIndexUnavailable, err)
	}
	driver, err := s.index(ctx, seg, scope)
	if err != nil {
		return retained, err
	}
	if err := driver.Add(ctx, []vector.Document{s.document(rec.ID, text, source, rec.CreatedAt, scope, emb)}); err != nil {
		return retained, fmt.Errorf("%w: adding to %s: %w", ErrIndexUnavailable, scope.Segment(), err)
	}

	s.logger.Info("memory recorded", "segment", scope.Segment(), "source", source, "id", rec.ID)
	return rec, nil
}

// Query retrieves up to k memories per visible segment: global first, then
// the caller's private segment, truncated to 2k. Results are not re-ranked
// across segments and not deduplicated. Failures degrade to fewer results.
func (s *Store) Query(ctx context.Context, text string, k int, caller Caller) []Result {
	if k <= 0 || text == "" {
		return nil
	}

	scopes := []ScopeKey{Global}
	if !caller.Identity.Anonymous() {
		scopes = append(scopes, Private(caller.Identity))
	}

	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("memory query embedding failed", "error", err)
		return nil
	}

	var out []Result
	for _, scope := range scopes {
		if err := caller.CanRead(scope); err != nil {
			continue
		}
		out = append(out, s.querySegment(ctx, scope, emb, k)...)
	}

	if len(out) > 2*k {
		out = out[:2*k]
	}
	return out
}

func (s *Store) querySegment(ctx context.Context, scope ScopeKey, emb []float32, k int) []Result {
	seg := s.segment(scope)
	seg.mu.RLock()
	found, err := s.querySegmentLocked(ctx, seg, scope, emb, k)
	seg.mu.RUnlock()
	if err != nil {
		s.logger.Warn("memory query failed", "segment", scope.Segment(), "error", err)
		return nil
	}

	results := make([]Result, 0, len(found))
	for _, r := range found {
		results = append(results, Result{
			Text:   r.Content,
			Source: r.Metadata[MetaSource],
			Date:   r.Metadata[MetaDate],
			Scope:  scope,
			Score:  r.Score,
		})
	}
	return results
}

func (s *Store) querySegmentLocked(ctx context.Context, seg *segment, scope ScopeKey, emb []float32, k int) ([]vector.QueryResult, error) {
	driver, err := s.index(ctx, seg, scope)
	if err != nil {
		return nil, err
	}
	return driver.Query(ctx, emb, k)
}

// ForgetSegment removes source from scope's retained texts and rebuilds the
// segment from what remains.
func (s *Store) ForgetSegment(ctx context.Context, scope ScopeKey, source string, caller Caller) error {
	if err := caller.CanWrite(scope); err != nil {
		return err
	}
	if s.sources == nil {
		return fmt.Errorf("%w: no document store to rebuild from", ErrNotConfigured)
	}

	seg := s.segment(scope)
	seg.mu.Lock()
	defer seg.mu.Unlock()

	if err := s.sources.Remove(scope.Segment(), source); err != nil {
		return fmt.Errorf("removing source %s: %w", source, err)
	}
	remaining, err := s.sources.List(scope.Segment())
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}

	s.logger.Info("forgetting source", "segment", scope.Segment(), "source", source, "remaining", len(remaining))
	return s.rebuildLocked(ctx, seg, scope, remaining)
}

// Rebuild resets the segment and re-indexes records.
func (s *Store) Rebuild(ctx context.Context, scope ScopeKey, records []SourceText) error {
	seg := s.segment(scope)
	seg.mu.Lock()
	defer seg.mu.Unlock()
	return s.rebuildLocked(ctx, seg, scope, records)
}

// RebuildFromSources rebuilds scope from the document store.
func (s *Store) RebuildFromSources(ctx context.Context, scope ScopeKey) error {
	if s.sources == nil {
		return fmt.Errorf("%w: no document store to rebuild from", ErrNotConfigured)
	}
	records, err := s.sources.List(scope.Segment())
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}
	return s.Rebuild(ctx, scope, records)
}

// rebuildLocked requires seg.mu held for writing. Records that fail to
// embed are skipped and reported; the rest are indexed.
func (s *Store) rebuildLocked(ctx context.Context, seg *segment, scope ScopeKey, records []SourceText) error {
	driver, err := s.index(ctx, seg, scope)
	if err != nil {
		return err
	}
	if err := driver.Reset(ctx); err != nil {
		return fmt.Errorf("%w: resetting %s: %w", ErrIndexUnavailable, scope.Segment(), err)
	}

	docs := make([]*vector.Document, len(records))
	errs := make([]error, len(records))

	var g errgroup.Group
	g.SetLimit(rebuildConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			if rec.Text == "" {
				return nil
			}
			emb, err := s.embedder.Embed(ctx, rec.Text)
			if err != nil {
				errs[i] = fmt.Errorf("embedding %s: %w", rec.Filename, err)
				return nil
			}
			created := rec.ModTime
			if created.IsZero() {
				created = s.now()
			}
			doc := s.document(ulid.Make().String(), rec.Text, rec.Filename, created, scope, emb)
			docs[i] = &doc
			return nil
		})
	}
	_ = g.Wait()

	batch := make([]vector.Document, 0, len(docs))
	for _, d := range docs {
		if d != nil {
			batch = append(batch, *d)
		}
	}
	if len(batch) > 0 {
		if err := driver.Add(ctx, batch); err != nil {
			return fmt.Errorf("%w: re-adding to %s: %w", ErrIndexUnavailable, scope.Segment(), err)
		}
	}

	s.logger.Info("segment rebuilt", "segment", scope.Segment(), "documents", len(batch), "skipped", len(records)-len(batch))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return nil
}

// Close releases every opened segment index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, seg := range s.segments {
		seg.mu.Lock()
		seg.openMu.Lock()
		if seg.driver != nil {
			if err := seg.driver.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
			}
			seg.driver = nil
		}
		seg.openMu.Unlock()
		seg.mu.Unlock()
	}
	s.segments = map[string]*segment{}
	return errors.Join(errs...)
}
