package memory

import "errors"

var (
	// ErrScopeViolation is returned when a caller reads or writes a segment
	// it does not own, or writes global memory without privilege.
	ErrScopeViolation = errors.New("scope violation")

	// ErrIndexUnavailable wraps failures of a segment's vector index.
	ErrIndexUnavailable = errors.New("memory index unavailable")

	// ErrNotConfigured is returned when memory operations are attempted
	// but no store has been configured.
	ErrNotConfigured = errors.New("memory not configured")
)
