package zarr

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	diskarray "github.com/TuSKan/go-diskarray"
)

// MetadataKey is the object holding the array metadata.
const MetadataKey = ".zarray"

// CompressorConfig represents the Zarr compressor metadata.
type CompressorConfig struct {
	ID           string `json:"id"`
	Cname        string `json:"cname,omitempty"`
	Clevel       int    `json:"clevel,omitempty"`
	Shuffle      int    `json:"shuffle,omitempty"`
	Level        int    `json:"level,omitempty"`
	Acceleration int    `json:"acceleration,omitempty"`
}

// Metadata represents the Zarr V2 .zarray metadata.
type Metadata struct {
	ZarrFormat         int               `json:"zarr_format"`
	Shape              []int             `json:"shape"`
	Chunks             []int             `json:"chunks"`
	DType              string            `json:"dtype"`
	Compressor         *CompressorConfig `json:"compressor"`
	FillValue          any               `json:"fill_value"`
	Order              string            `json:"order"`
	Filters            []json.RawMessage `json:"filters"`
	DimensionSeparator string            `json:"dimension_separator,omitempty"`
}

// LoadMetadata reads and validates a .zarray document.
func LoadMetadata(reader io.Reader) (*Metadata, error) {
	var meta Metadata
	if err := json.NewDecoder(reader).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

// WriteMetadata validates meta and writes it as a .zarray document.
func WriteMetadata(w io.Writer, meta *Metadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	return nil
}

// Validate checks the parts of the metadata this package relies on.
func (m *Metadata) Validate() error {
	if m.ZarrFormat != 2 {
		return fmt.Errorf("unsupported zarr_format: %d, expected 2", m.ZarrFormat)
	}
	if len(m.Chunks) != len(m.Shape) {
		return fmt.Errorf("chunks %v do not match shape %v", m.Chunks, m.Shape)
	}
	for i := range m.Shape {
		if m.Shape[i] < 0 || m.Chunks[i] < 1 {
			return fmt.Errorf("invalid shape %v or chunks %v at dimension %d", m.Shape, m.Chunks, i)
		}
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("unsupported order: %s", m.Order)
	}
	if len(m.Filters) > 0 {
		return fmt.Errorf("filters are unsupported")
	}
	if _, _, err := ParseDType(m.DType); err != nil {
		return err
	}
	return nil
}

// Separator returns the chunk key separator, "." unless overridden.
func (m *Metadata) Separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

// ItemSize returns the size of one element in bytes.
func (m *Metadata) ItemSize() int {
	_, size, _ := ParseDType(m.DType)
	return size
}

// ChunkLen returns the number of elements of a stored chunk. Edge chunks are
// stored at full size.
func (m *Metadata) ChunkLen() int {
	n := 1
	for _, c := range m.Chunks {
		n *= c
	}
	return n
}

// Grid returns the regular chunk grid described by the metadata.
func (m *Metadata) Grid() (diskarray.GridChunks, error) {
	return diskarray.NewRegularGrid(m.Shape, m.Chunks)
}

// Fill returns the fill value as a float64. A null fill value is 0.
func (m *Metadata) Fill() (float64, error) {
	switch v := m.FillValue.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		switch v {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return strconv.ParseFloat(v, 64)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported fill_value: %v", v)
	}
}

// ParseDType takes a numpy-style string like "<f4", "|b1", "<i8",
// and returns a simplified string name (e.g., "float32", "bool", "int64"),
// the byte size (e.g., 4, 1, 8), and an error if unsupported.
// Reject big-endian (>) types for now.
func ParseDType(s string) (string, int, error) {
	if len(s) < 3 {
		return "", 0, fmt.Errorf("invalid dtype: %s", s)
	}

	endian := s[0]
	if endian == '>' {
		return "", 0, fmt.Errorf("big-endian types are unsupported: %s", s)
	}

	kind := s[1]
	sizeStr := s[2:]

	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid size in dtype: %s", s)
	}

	switch kind {
	case 'b':
		return "bool", size, nil
	case 'i':
		return fmt.Sprintf("int%d", size*8), size, nil
	case 'u':
		return fmt.Sprintf("uint%d", size*8), size, nil
	case 'f':
		return fmt.Sprintf("float%d", size*8), size, nil
	case 'c':
		return fmt.Sprintf("complex%d", size*8), size, nil
	default:
		return "", 0, fmt.Errorf("unsupported dtype kind: %c in %s", kind, s)
	}
}
