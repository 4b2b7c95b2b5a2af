package testutils

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// MockEmbedder is a test embedder that returns predictable embeddings.
// Texts without an explicit entry get a deterministic FNV-derived vector.
type MockEmbedder struct {
	mu         sync.RWMutex
	Embeddings map[string][]float32

	// Dimensions of generated vectors. Defaults to 8.
	Dimensions int

	// FailOn causes Embed to return an error when the input text matches.
	FailOn string

	calls atomic.Int64
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Dimensions: 8,
	}
}

// Set registers a fixed embedding for text.
func (m *MockEmbedder) Set(text string, emb []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Embeddings[text] = emb
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	m.mu.RLock()
	emb, ok := m.Embeddings[text]
	m.mu.RUnlock()
	if ok {
		return emb, nil
	}

	dims := m.Dimensions
	if dims <= 0 {
		dims = 8
	}
	out := make([]float32, dims)
	for i := range out {
		h := fnv.New32a()
		_, _ = fmt.Fprintf(h, "%d:%s", i, text)
		out[i] = float32(h.Sum32()%1000) / 1000
	}
	return out, nil
}

// Calls reports how many times Embed ran.
func (m *MockEmbedder) Calls() int64 {
	return m.calls.Load()
}

func (m *MockEmbedder) Close() error {
	return nil
}
