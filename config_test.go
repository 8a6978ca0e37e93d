package diskarray_test

import (
	"testing"

	diskarray "github.com/TuSKan/go-diskarray"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := diskarray.NewConfig()
	require.Equal(t, int64(diskarray.DefaultChunkBytes), cfg.ChunkBytes())
	require.Equal(t, diskarray.DefaultFallbackElementSize, cfg.FallbackElementSize())
	require.True(t, cfg.AllowScalar())

	cfg.SetChunkBytes(0)
	require.Equal(t, int64(1), cfg.ChunkBytes())
	cfg.SetFallbackElementSize(-3)
	require.Equal(t, 1, cfg.FallbackElementSize())
	cfg.SetAllowScalar(false)
	require.False(t, cfg.AllowScalar())

	// Other configs are independent of the process default.
	require.True(t, diskarray.Default().AllowScalar())
}

func TestConfigFromViper(t *testing.T) {
	v := viper.New()
	v.Set("chunk_size", "2MiB")
	v.Set("fallback_element_size", 16)
	v.Set("allow_scalar", false)

	cfg, err := diskarray.ConfigFromViper(v)
	require.NoError(t, err)
	require.Equal(t, int64(2<<20), cfg.ChunkBytes())
	require.Equal(t, 16, cfg.FallbackElementSize())
	require.False(t, cfg.AllowScalar())

	cfg, err = diskarray.ConfigFromViper(viper.New())
	require.NoError(t, err)
	require.Equal(t, int64(diskarray.DefaultChunkBytes), cfg.ChunkBytes())

	v = viper.New()
	v.Set("chunk_size", "lots")
	_, err = diskarray.ConfigFromViper(v)
	require.Error(t, err)

	v = viper.New()
	v.Set("fallback_element_size", 0)
	_, err = diskarray.ConfigFromViper(v)
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DISKARRAY_CHUNK_SIZE", "5MB")
	t.Setenv("DISKARRAY_ALLOW_SCALAR", "false")

	cfg, err := diskarray.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, int64(5_000_000), cfg.ChunkBytes())
	require.Equal(t, diskarray.DefaultFallbackElementSize, cfg.FallbackElementSize())
	require.False(t, cfg.AllowScalar())
}
