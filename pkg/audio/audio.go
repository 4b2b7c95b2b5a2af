// Package audio talks to the speech services: a transcriber that turns
// recorded audio into text and a synthesizer that turns a reply into an mp3
// served from the static audio directory. Both are reached over HTTP and
// treated as opaque.
package audio

import (
	"context"
	"errors"
)

const (
	DefaultLanguage = "th-TH"
	DefaultVoice    = "th-TH-PremwadeeNeural"
	DefaultRate     = "-5%"
	DefaultPitch    = "+60Hz"

	// URLPrefix is where synthesized files are served from.
	URLPrefix = "/static/audio/"
)

var (
	// ErrNotConfigured is returned by the no-op implementations.
	ErrNotConfigured = errors.New("audio service not configured")

	// ErrSynthesisFailed wraps any failure to produce an audio file.
	ErrSynthesisFailed = errors.New("speech synthesis failed")

	// ErrTranscriptionFailed wraps transport failures. An empty transcription
	// is not an error.
	ErrTranscriptionFailed = errors.New("transcription failed")
)

// Transcriber turns audio into text. "" means nothing was understood.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// Synthesizer renders text to an audio file and returns its URL path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Nop implements both interfaces and always fails with ErrNotConfigured.
type Nop struct{}

func (Nop) Transcribe(context.Context, []byte, string) (string, error) {
	return "", ErrNotConfigured
}

func (Nop) Synthesize(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

var (
	_ Transcriber = Nop{}
	_ Synthesizer = Nop{}
)
