// Package llm holds the provider-agnostic generation types: the prompt a
// provider receives, the fixed generation parameters and the Generator
// contract every provider kind implements.
package llm

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrProviderTimeout is returned when a provider does not answer within
	// its attempt timeout.
	ErrProviderTimeout = errors.New("provider timed out")

	// ErrProviderRejected covers non-2xx responses, malformed payloads and
	// empty replies.
	ErrProviderRejected = errors.New("provider rejected request")

	// ErrProvidersExhausted is returned when every rung of the ladder failed.
	ErrProvidersExhausted = errors.New("all providers exhausted")
)

// Prompt is what a provider sends to its model.
type Prompt struct {
	System string
	User   string

	// Utterance, Context and Persona are the raw parts, for providers that
	// build their own prompt remotely.
	Utterance string
	Context   string
	Persona   string
}

// Messages renders the prompt as a system and a user message.
func (p Prompt) Messages() []Message {
	msgs := make([]Message, 0, 2)
	if p.System != "" {
		msgs = append(msgs, NewTextMessage(RoleSystem, p.System))
	}
	return append(msgs, NewTextMessage(RoleUser, p.User))
}

// Params are fixed per provider kind and never set per request.
type Params struct {
	Temperature   float64
	MaxTokens     int
	TopP          float64
	RepeatPenalty float64
	Stop          []string
}

// DefaultStop keeps small models from continuing into invented turns.
var DefaultStop = []string{"<|im_end|>", "\n\n", "User:", "Question:", "Mali:", "System:"}

// DefaultParams are the short, focused reply settings every kind starts from.
func DefaultParams() Params {
	return Params{
		Temperature: 0.3,
		MaxTokens:   80,
		TopP:        0.9,
		Stop:        append([]string(nil), DefaultStop...),
	}
}

// Generator is one generation backend.
type Generator interface {
	// Generate returns the raw model text for p.
	Generate(ctx context.Context, p Prompt) (string, error)

	// Source labels replies produced by this generator.
	Source() string
}

// FirstLine cuts model output at the first newline and trims it.
func FirstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
