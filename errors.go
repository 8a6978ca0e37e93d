package diskarray

import "errors"

var (
	// ErrShapeMismatch is returned when an index expression or a buffer does not
	// match the rank or shape it is applied to.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrOutOfBounds is returned when an index addresses a position outside the array.
	ErrOutOfBounds = errors.New("index out of bounds")
	// ErrScalarDisallowed is returned when scalar access is disabled and an
	// index would resolve to element-at-a-time block operations.
	ErrScalarDisallowed = errors.New("scalar indexing is disallowed")
	// ErrReadOnly is returned by backends that do not support writes.
	ErrReadOnly = errors.New("backend is read-only")
	// ErrInvalidChunks is returned for chunk partitions that do not tile their axis.
	ErrInvalidChunks = errors.New("invalid chunk specification")
	// ErrSpillUnsupported is returned when spilling is requested for an element
	// type that holds pointers.
	ErrSpillUnsupported = errors.New("element type cannot be spilled to secondary storage")
	// ErrClosed is returned when a closed cache is used.
	ErrClosed = errors.New("cache is closed")
)
