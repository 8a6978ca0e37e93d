package zarr

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrUnsupportedCodec is returned for compressors this package cannot handle.
var ErrUnsupportedCodec = errors.New("unsupported compressor")

// Codec compresses and decompresses whole chunks.
type Codec interface {
	Encode(raw []byte) ([]byte, error)
	// Decode returns the decompressed chunk; size is the expected length.
	Decode(data []byte, size int) ([]byte, error)
}

// NewCodec returns the codec described by a compressor configuration. A nil
// configuration stores chunks uncompressed.
func NewCodec(cfg *CompressorConfig) (Codec, error) {
	if cfg == nil {
		return rawCodec{}, nil
	}
	switch cfg.ID {
	case "zstd":
		level := zstd.SpeedDefault
		if cfg.Level > 0 {
			level = zstd.EncoderLevelFromZstd(cfg.Level)
		}
		return zstdCodec{level: level}, nil
	case "zlib":
		return zlibCodec{level: flateLevel(cfg.Level)}, nil
	case "gzip":
		return gzipCodec{level: flateLevel(cfg.Level)}, nil
	case "lz4":
		return lz4Codec{}, nil
	case "blosc":
		return nil, fmt.Errorf("%w: blosc", ErrUnsupportedCodec)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, cfg.ID)
	}
}

func flateLevel(level int) int {
	if level <= 0 {
		return zlib.DefaultCompression
	}
	return min(level, zlib.BestCompression)
}

type rawCodec struct{}

func (rawCodec) Encode(raw []byte) ([]byte, error) { return raw, nil }

func (rawCodec) Decode(data []byte, _ int) ([]byte, error) { return data, nil }

var (
	zstdEncoders sync.Map // zstd.EncoderLevel -> *sync.Pool
	zstdDecoders sync.Pool
)

type zstdCodec struct {
	level zstd.EncoderLevel
}

func (c zstdCodec) Encode(raw []byte) ([]byte, error) {
	p, _ := zstdEncoders.LoadOrStore(c.level, &sync.Pool{})
	pool := p.(*sync.Pool)
	enc, ok := pool.Get().(*zstd.Encoder)
	if !ok {
		var err error
		if enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level)); err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
	}
	defer pool.Put(enc)
	return enc.EncodeAll(raw, nil), nil
}

func (zstdCodec) Decode(data []byte, size int) ([]byte, error) {
	dec, ok := zstdDecoders.Get().(*zstd.Decoder)
	if !ok {
		var err error
		if dec, err = zstd.NewReader(nil); err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
	}
	defer zstdDecoders.Put(dec)
	out, err := dec.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zstd chunk: %w", err)
	}
	return out, nil
}

type zlibCodec struct{ level int }

func (c zlibCodec) Encode(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("failed to init zlib writer: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress zlib chunk: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress zlib chunk: %w", err)
	}
	return buf.Bytes(), nil
}

func (zlibCodec) Decode(data []byte, _ int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to init zlib reader: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zlib chunk: %w", err)
	}
	return out, nil
}

type gzipCodec struct{ level int }

func (c gzipCodec) Encode(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("failed to init gzip writer: %w", err)
	}
	if _, err := gw.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress gzip chunk: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress gzip chunk: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decode(data []byte, _ int) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to init gzip reader: %w", err)
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress gzip chunk: %w", err)
	}
	return out, nil
}

// lz4Codec uses the numcodecs layout: the uncompressed size as a little
// endian uint32 followed by one LZ4 block.
type lz4Codec struct{}

func (lz4Codec) Encode(raw []byte) ([]byte, error) {
	out := make([]byte, 4+lz4.CompressBlockBound(len(raw)))
	binary.LittleEndian.PutUint32(out, uint32(len(raw)))
	n, err := lz4.CompressBlock(raw, out[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compress lz4 chunk: %w", err)
	}
	if n == 0 && len(raw) > 0 {
		return nil, fmt.Errorf("failed to compress lz4 chunk: incompressible input")
	}
	return out[:4+n], nil
}

func (lz4Codec) Decode(data []byte, _ int) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("lz4 chunk too small for header")
	}
	out := make([]byte, binary.LittleEndian.Uint32(data))
	n, err := lz4.UncompressBlock(data[4:], out)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress lz4 chunk: %w", err)
	}
	return out[:n], nil
}
