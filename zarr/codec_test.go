package zarr_test

import (
	"bytes"
	"testing"

	"github.com/TuSKan/go-diskarray/zarr"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte("diskarray chunk payload "), 64)
	configs := map[string]*zarr.CompressorConfig{
		"raw":       nil,
		"zstd":      {ID: "zstd"},
		"zstd-19":   {ID: "zstd", Level: 19},
		"zlib":      {ID: "zlib", Level: 1},
		"gzip":      {ID: "gzip"},
		"lz4":       {ID: "lz4", Acceleration: 1},
		"zlib-over": {ID: "zlib", Level: 42},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			codec, err := zarr.NewCodec(cfg)
			require.NoError(t, err)

			enc, err := codec.Encode(raw)
			require.NoError(t, err)
			if cfg != nil {
				require.Less(t, len(enc), len(raw))
			}
			dec, err := codec.Decode(enc, len(raw))
			require.NoError(t, err)
			require.Equal(t, raw, dec)
		})
	}
}

func TestCodec_LZ4Header(t *testing.T) {
	codec, err := zarr.NewCodec(&zarr.CompressorConfig{ID: "lz4"})
	require.NoError(t, err)
	raw := bytes.Repeat([]byte{1, 2, 3, 4}, 100)
	enc, err := codec.Encode(raw)
	require.NoError(t, err)
	require.Equal(t, []byte{0x90, 0x01, 0, 0}, enc[:4])

	_, err = codec.Decode([]byte{1, 2}, 0)
	require.Error(t, err)
}

func TestCodec_Unsupported(t *testing.T) {
	for _, id := range []string{"blosc", "bz2"} {
		_, err := zarr.NewCodec(&zarr.CompressorConfig{ID: id})
		require.ErrorIs(t, err, zarr.ErrUnsupportedCodec)
	}
}

func TestCodec_CorruptInput(t *testing.T) {
	for _, id := range []string{"zstd", "zlib", "gzip"} {
		codec, err := zarr.NewCodec(&zarr.CompressorConfig{ID: id})
		require.NoError(t, err)
		_, err = codec.Decode([]byte("not compressed at all"), 16)
		require.Error(t, err, id)
	}
}
