// Package intent classifies an utterance before any model call: a request
// to remember something, a request to change how the assistant addresses
// the user, or an ordinary query.
package intent

import "github.com/nontawat9304/mali-chat/pkg/memory"

// Kind is the classification of an utterance.
type Kind int

const (
	Query Kind = iota
	MemoryWrite
	ProfileUpdate
)

func (k Kind) String() string {
	switch k {
	case MemoryWrite:
		return "memory_write"
	case ProfileUpdate:
		return "profile_update"
	default:
		return "query"
	}
}

// Intent is the router's verdict.
type Intent struct {
	Kind Kind

	// Content is the text to remember for MemoryWrite.
	Content string

	// Scope is the target scope for MemoryWrite.
	Scope memory.ScopeKey

	// Name is the new display name for ProfileUpdate.
	Name string
}
