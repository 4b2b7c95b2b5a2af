package testutils

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/nontawat9304/mali-chat/pkg/vector"
)

// ErrMockIndex is returned by MockVectorDriver when a failure is armed.
var ErrMockIndex = errors.New("mock index failure")

// MockVectorDriver is an in-memory segment. Query returns documents newest
// first, capped at topK; it performs no similarity ranking.
type MockVectorDriver struct {
	mu        sync.Mutex
	documents []vector.Document
	resets    int

	// FailAdd and FailQuery arm errors on the respective calls.
	FailAdd   bool
	FailQuery bool
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		documents: make([]vector.Document, 0),
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAdd {
		return ErrMockIndex
	}
	for _, d := range docs {
		m.documents = slices.DeleteFunc(m.documents, func(e vector.Document) bool { return e.ID == d.ID })
		m.documents = append(m.documents, d)
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, _ []float32, topK int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailQuery {
		return nil, ErrMockIndex
	}

	results := make([]vector.QueryResult, 0, topK)
	for i := len(m.documents) - 1; i >= 0 && len(results) < topK; i-- {
		results = append(results, vector.QueryResult{Document: m.documents[i], Score: 1})
	}
	return results, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = slices.DeleteFunc(m.documents, func(d vector.Document) bool { return slices.Contains(ids, d.ID) })
	return nil
}

func (m *MockVectorDriver) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = m.documents[:0]
	m.resets++
	return nil
}

// Documents returns a copy of the stored documents in insertion order.
func (m *MockVectorDriver) Documents() []vector.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.documents)
}

// Resets reports how many times Reset ran.
func (m *MockVectorDriver) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

func (m *MockVectorDriver) Close() error {
	return nil
}

// MockOpener hands out one MockVectorDriver per segment.
type MockOpener struct {
	mu      sync.Mutex
	Drivers map[string]*MockVectorDriver

	// FailOpen makes Open fail for the named segments.
	FailOpen map[string]bool

	holds map[string]chan struct{}
	opens map[string]int
}

func NewMockOpener() *MockOpener {
	return &MockOpener{
		Drivers:  make(map[string]*MockVectorDriver),
		FailOpen: make(map[string]bool),
		holds:    make(map[string]chan struct{}),
		opens:    make(map[string]int),
	}
}

// Hold makes Open for segment block until the returned func is called or
// the open's context ends.
func (o *MockOpener) Hold(segment string) (release func()) {
	ch := make(chan struct{})
	o.mu.Lock()
	o.holds[segment] = ch
	o.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Opens reports how many times Open ran for segment.
func (o *MockOpener) Opens(segment string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[segment]
}

// Open implements vector.Opener.
func (o *MockOpener) Open(ctx context.Context, segment string) (vector.Driver, error) {
	hold, err := o.begin(segment)
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return o.Driver(segment), nil
}

func (o *MockOpener) begin(segment string) (chan struct{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens[segment]++
	if o.FailOpen[segment] {
		return o.holds[segment], ErrMockIndex
	}
	return o.holds[segment], nil
}

// Driver returns the mock for segment, creating it on first use.
func (o *MockOpener) Driver(segment string) *MockVectorDriver {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.Drivers[segment]
	if !ok {
		d = NewMockVectorDriver()
		o.Drivers[segment] = d
	}
	return d
}
