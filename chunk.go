package diskarray

import (
	"strconv"
	"strings"
)

// ChunkKey joins a chunk coordinate with sep, Zarr style.
// Example: coord=[1, 4], sep="." -> "1.4". A 0-d coordinate is "0".
func ChunkKey(coord []int, sep string) string {
	if len(coord) == 0 {
		return "0"
	}
	if len(coord) == 1 {
		return strconv.Itoa(coord[0])
	}

	var sb strings.Builder
	for i, c := range coord {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(strconv.Itoa(c))
	}
	return sb.String()
}
