package storage

import (
	"errors"

	"github.com/nontawat9304/mali-chat/pkg/memory"
)

// NotFoundError is returned when a profile doesn't exist in the store.
type NotFoundError struct {
	Identity memory.Identity
}

func (e NotFoundError) Error() string {
	if e.Identity == "" {
		return "profile not found"
	}

	return "profile not found: " + string(e.Identity)
}

// ErrNotFound matches any NotFoundError through errors.Is.
var ErrNotFound = errors.New("not found")

func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
