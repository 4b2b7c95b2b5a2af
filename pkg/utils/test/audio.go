package testutils

import (
	"context"
	"sync"

	"github.com/nontawat9304/mali-chat/pkg/audio"
)

// MockSpeech implements audio.Transcriber and audio.Synthesizer with canned
// results and records what it was given.
type MockSpeech struct {
	// Transcript is returned by Transcribe.
	Transcript string

	// URL is returned by Synthesize.
	URL string

	// Fail makes both calls return an error.
	Fail bool

	mu     sync.Mutex
	spoken []string
}

// NewMockSpeech returns a MockSpeech that transcribes to transcript and
// synthesizes to url.
func NewMockSpeech(transcript, url string) *MockSpeech {
	return &MockSpeech{Transcript: transcript, URL: url}
}

func (m *MockSpeech) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	if m.Fail {
		return "", audio.ErrTranscriptionFailed
	}
	return m.Transcript, nil
}

func (m *MockSpeech) Synthesize(_ context.Context, text string) (string, error) {
	m.mu.Lock()
	m.spoken = append(m.spoken, text)
	m.mu.Unlock()

	if m.Fail {
		return "", audio.ErrSynthesisFailed
	}
	return m.URL, nil
}

// Spoken returns every text passed to Synthesize.
func (m *MockSpeech) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}
