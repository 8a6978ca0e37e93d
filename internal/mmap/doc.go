// Package mmap provides read-write memory-mapped temporary files.
//
// A Mapping owns its file and its pages. The byte slice returned by Bytes
// is valid until Close; writes through it reach the file without a copy.
//
//	m, err := mmap.Create(path, size)
//	if err != nil { ... }
//	defer m.Close()
//	copy(m.Bytes(), payload)
//
// Only unix platforms are supported; elsewhere Create returns ErrUnsupported.
package mmap
