package mmap

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
)

var (
	// ErrClosed is returned when attempting to access a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for negative sizes.
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrUnsupported is returned on platforms without mmap.
	ErrUnsupported = errors.New("mmap: not supported on this platform")
)

// Mapping is a shared read-write mapping of a whole file.
type Mapping struct {
	data   []byte
	path   string
	closed atomic.Bool
	unmap  func([]byte) error
}

// Create creates (or truncates) the file at path to size bytes and maps it.
func Create(path string, size int) (*Mapping, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("failed to size %s: %w", path, err)
	}
	if size == 0 {
		return &Mapping{path: path}, nil
	}
	data, unmap, err := osMap(f, size)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %w", path, err)
	}
	return &Mapping{data: data, path: path, unmap: unmap}, nil
}

// Close unmaps the memory. It is idempotent. The file is left in place.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.unmap != nil && m.data != nil {
		return m.unmap(m.data)
	}
	return nil
}

// Remove closes the mapping and deletes its file.
func (m *Mapping) Remove() error {
	err := m.Close()
	if rmErr := os.Remove(m.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

// Bytes returns the mapped memory, or nil once closed.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int { return len(m.data) }

// Path returns the mapped file path.
func (m *Mapping) Path() string { return m.path }
