package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nontawat9304/mali-chat/pkg/llm"
)

// ErrMockGenerate is returned by MockGenerator when Fail is set.
var ErrMockGenerate = errors.New("mock generation failure")

// MockGenerator is a scripted llm.Generator. It records every prompt it sees.
type MockGenerator struct {
	Name  string
	Reply string

	// Fail makes Generate return ErrMockGenerate.
	Fail bool

	// Delay holds the reply back. Generate gives up early if its context ends.
	Delay time.Duration

	// Hang blocks until the context ends.
	Hang bool

	mu      sync.Mutex
	prompts []llm.Prompt
}

func NewMockGenerator(name, reply string) *MockGenerator {
	return &MockGenerator{Name: name, Reply: reply}
}

func (m *MockGenerator) Source() string {
	return m.Name
}

func (m *MockGenerator) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, p)
	m.mu.Unlock()

	if m.Hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.Fail {
		return "", ErrMockGenerate
	}
	return m.Reply, nil
}

// Prompts returns a copy of every prompt received.
func (m *MockGenerator) Prompts() []llm.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Prompt(nil), m.prompts...)
}

// Calls reports how many times Generate ran.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
