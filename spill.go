package diskarray

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"unsafe"

	"github.com/TuSKan/go-diskarray/internal/mmap"
)

type spillFile[T any] struct {
	m    *mmap.Mapping
	data []T
}

// spillStore keeps evicted chunks in memory-mapped temp files, one file per
// chunk, in a directory created on first use. T must hold no pointers.
type spillStore[T any] struct {
	dir      string
	elemSize int
	files    map[string]*spillFile[T]
}

func newSpillStore[T any]() (*spillStore[T], error) {
	es := elementSize[T]()
	if es == 0 {
		var zero T
		return nil, fmt.Errorf("%w: element type %T", ErrSpillUnsupported, zero)
	}
	return &spillStore[T]{elemSize: es, files: map[string]*spillFile[T]{}}, nil
}

func (s *spillStore[T]) put(key string, data []T) error {
	if s.dir == "" {
		dir, err := os.MkdirTemp("", "diskarray-spill-*")
		if err != nil {
			return fmt.Errorf("failed to create spill directory: %w", err)
		}
		s.dir = dir
	}
	if old, ok := s.files[key]; ok {
		delete(s.files, key)
		if err := old.m.Remove(); err != nil {
			return fmt.Errorf("failed to replace spilled chunk %s: %w", key, err)
		}
	}

	m, err := mmap.Create(filepath.Join(s.dir, key+".bin"), len(data)*s.elemSize)
	if err != nil {
		return err
	}
	view := unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(m.Bytes()))), len(data))
	copy(view, data)
	s.files[key] = &spillFile[T]{m: m, data: view}
	return nil
}

// view returns the mapped elements of key for in-place updates.
func (s *spillStore[T]) view(key string) ([]T, bool) {
	if s == nil {
		return nil, false
	}
	f, ok := s.files[key]
	if !ok {
		return nil, false
	}
	return f.data, true
}

// take copies a spilled chunk back to the heap and releases its file.
func (s *spillStore[T]) take(key string) ([]T, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	f, ok := s.files[key]
	if !ok {
		return nil, false, nil
	}
	data := slices.Clone(f.data)
	delete(s.files, key)
	return data, true, f.m.Remove()
}

func (s *spillStore[T]) len() int {
	if s == nil {
		return 0
	}
	return len(s.files)
}

func (s *spillStore[T]) close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for key, f := range s.files {
		errs = append(errs, f.m.Close())
		delete(s.files, key)
	}
	if s.dir != "" {
		errs = append(errs, os.RemoveAll(s.dir))
		s.dir = ""
	}
	return errors.Join(errs...)
}
