// Package storage persists conversation transcripts and user profiles.
package storage

import (
	"context"
	"time"

	"github.com/nontawat9304/mali-chat/pkg/history"
	"github.com/nontawat9304/mali-chat/pkg/memory"
)

// Profile is what the assistant knows about a user outside of memory.
type Profile struct {
	Identity    memory.Identity
	DisplayName string
	Role        string
	UpdatedAt   time.Time
}

// Facts renders the profile as identity facts for the context bundle.
func (p Profile) Facts() map[string]string {
	facts := map[string]string{}
	if p.DisplayName != "" {
		facts["name"] = p.DisplayName
	}
	if p.Role != "" {
		facts["role"] = p.Role
	}
	return facts
}

// Driver defines the interface for transcript and profile storage backends.
type Driver interface {
	// AppendTurn records one turn of identity's transcript.
	AppendTurn(ctx context.Context, identity memory.Identity, turn history.Turn) error

	// RecentTurns returns up to n of identity's latest turns, oldest first.
	RecentTurns(ctx context.Context, identity memory.Identity, n int) ([]history.Turn, error)

	// GetProfile returns identity's profile or NotFoundError.
	GetProfile(ctx context.Context, identity memory.Identity) (Profile, error)

	// SetProfile creates or replaces a profile. A zero UpdatedAt is set to now.
	SetProfile(ctx context.Context, p Profile) error

	// Close closes the store and releases any resources.
	Close() error
}
