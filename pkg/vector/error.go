package vector

import "errors"

var (
	// ErrEmbedding wraps failures to turn text into a vector.
	ErrEmbedding = errors.New("embedding failed")

	// ErrConnection wraps failures to reach or prepare the backing index.
	ErrConnection = errors.New("vector store connection failed")
)
