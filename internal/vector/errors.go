package vector

import "errors"

var (
	// ErrEmptyStore is returned by Search on a store with no entries.
	ErrEmptyStore = errors.New("vector store is empty")
	// ErrDimensionMismatch is returned when a vector's length differs from the store's dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrNotFound is returned by Load when no persisted store exists at the path.
	ErrNotFound = errors.New("persisted store not found")
	// ErrCorruptStore is returned by Load when the persisted store cannot be read.
	ErrCorruptStore = errors.New("persisted store is corrupt")
	// ErrInvalidK is returned by Search when k < 1.
	ErrInvalidK = errors.New("k must be at least 1")
	// ErrInvalidChunk is returned by Put for a chunk with an empty ID or text.
	ErrInvalidChunk = errors.New("chunk must have a non-empty id and text")
)
