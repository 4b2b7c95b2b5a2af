package memory

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Identity is an opaque principal id. The zero value is the anonymous caller.
type Identity string

// Anonymous reports whether the identity is absent.
func (i Identity) Anonymous() bool {
	return i == ""
}

const (
	globalSegment = "global"
	privatePrefix = "user_"

	// identities with characters unsafe for paths are hex encoded behind
	// this prefix so two identities never share a segment
	encodedPrefix = "userx_"
)

// ScopeKey partitions long-term memory: the shared global scope or one
// private scope per identity.
type ScopeKey struct {
	owner  Identity
	global bool
}

// Global is the scope readable by everyone and writable by privileged callers.
var Global = ScopeKey{global: true}

// Private returns the scope owned by id.
func Private(id Identity) ScopeKey {
	return ScopeKey{owner: id}
}

// IsGlobal reports whether s is the global scope.
func (s ScopeKey) IsGlobal() bool {
	return s.global
}

// Owner is the identity owning a private scope; empty for Global.
func (s ScopeKey) Owner() Identity {
	return s.owner
}

// Segment names the index and on-disk directory backing the scope.
func (s ScopeKey) Segment() string {
	if s.global {
		return globalSegment
	}
	id := string(s.owner)
	if safeSegmentName(id) {
		return privatePrefix + id
	}
	return encodedPrefix + hex.EncodeToString([]byte(id))
}

func (s ScopeKey) String() string {
	if s.global {
		return "global"
	}
	return fmt.Sprintf("private(%s)", s.owner)
}

func safeSegmentName(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

// ParseSegment is the inverse of ScopeKey.Segment.
func ParseSegment(name string) (ScopeKey, bool) {
	switch {
	case name == globalSegment:
		return Global, true
	case strings.HasPrefix(name, encodedPrefix):
		raw, err := hex.DecodeString(strings.TrimPrefix(name, encodedPrefix))
		if err != nil || len(raw) == 0 {
			return ScopeKey{}, false
		}
		return Private(Identity(raw)), true
	case strings.HasPrefix(name, privatePrefix):
		id := strings.TrimPrefix(name, privatePrefix)
		if !safeSegmentName(id) {
			return ScopeKey{}, false
		}
		return Private(Identity(id)), true
	default:
		return ScopeKey{}, false
	}
}

// Caller describes who is asking and what they may touch.
type Caller struct {
	Identity Identity

	// Privileged callers may write the global scope.
	Privileged bool

	// RequestGlobal asks for a memory write to target the global scope.
	RequestGlobal bool
}

// CanRead returns ErrScopeViolation unless the caller may read s.
func (c Caller) CanRead(s ScopeKey) error {
	if s.global {
		return nil
	}
	if s.owner.Anonymous() || s.owner != c.Identity {
		return fmt.Errorf("%w: %q reading %s", ErrScopeViolation, c.Identity, s)
	}
	return nil
}

// CanWrite returns ErrScopeViolation unless the caller may write s.
func (c Caller) CanWrite(s ScopeKey) error {
	if s.global {
		if !c.Privileged {
			return fmt.Errorf("%w: %q writing global without privilege", ErrScopeViolation, c.Identity)
		}
		return nil
	}
	return c.CanRead(s)
}

// WriteScope is where the caller's writes land: private by default, global
// when asked for. Anonymous callers have no private scope and also target
// global. CanWrite then decides, so an unprivileged request for global is
// rejected rather than redirected.
func (c Caller) WriteScope() ScopeKey {
	if c.Identity.Anonymous() || c.RequestGlobal {
		return Global
	}
	return Private(c.Identity)
}
