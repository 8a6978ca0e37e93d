package zarr

import diskarray "github.com/TuSKan/go-diskarray"

// ChunkKey generates the key for a chunk given its indices and a separator.
// For Zarr V2, the separator is typically ".".
// Example: indices=[1, 4], separator="." -> "1.4"
func ChunkKey(indices []int, separator string) string {
	return diskarray.ChunkKey(indices, separator)
}

// iterateSubGrid iterates from start (inclusive) to end (exclusive) in each dimension.
func iterateSubGrid(start, end []int, fn func(indices []int) error) error {
	for i := range start {
		if start[i] >= end[i] {
			return nil
		}
	}
	indices := make([]int, len(start))
	copy(indices, start)

	for {
		if err := fn(indices); err != nil {
			return err
		}

		i := len(start) - 1
		for ; i >= 0; i-- {
			indices[i]++
			if indices[i] < end[i] {
				break
			}
			indices[i] = start[i]
		}
		if i < 0 {
			return nil
		}
	}
}
