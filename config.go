package diskarray

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

const (
	// DefaultChunkBytes is the target size of synthesized chunks for
	// backends without a native chunking.
	DefaultChunkBytes = 100 * 1000 * 1000
	// DefaultFallbackElementSize is used for element types without a fixed size.
	DefaultFallbackElementSize = 100
)

// Config holds the settings shared by grid synthesis and index resolution.
// It is safe for concurrent use.
type Config struct {
	chunkBytes  atomic.Int64
	elementSize atomic.Int64
	allowScalar atomic.Bool
}

// NewConfig returns a Config populated with the defaults.
func NewConfig() *Config {
	c := &Config{}
	c.chunkBytes.Store(DefaultChunkBytes)
	c.elementSize.Store(DefaultFallbackElementSize)
	c.allowScalar.Store(true)
	return c
}

var defaultConfig = NewConfig()

// Default returns the process-wide Config used when no Config is supplied.
func Default() *Config { return defaultConfig }

// ChunkBytes returns the target size of synthesized chunks.
func (c *Config) ChunkBytes() int64 { return c.chunkBytes.Load() }

// SetChunkBytes sets the target size of synthesized chunks.
func (c *Config) SetChunkBytes(n int64) {
	if n < 1 {
		n = 1
	}
	c.chunkBytes.Store(n)
}

// FallbackElementSize returns the element size assumed when it is unknown.
func (c *Config) FallbackElementSize() int { return int(c.elementSize.Load()) }

// SetFallbackElementSize sets the element size assumed when it is unknown.
func (c *Config) SetFallbackElementSize(n int) {
	if n < 1 {
		n = 1
	}
	c.elementSize.Store(int64(n))
}

// AllowScalar reports whether element-at-a-time access is permitted.
func (c *Config) AllowScalar() bool { return c.allowScalar.Load() }

// SetAllowScalar enables or disables element-at-a-time access. Disabling it
// helps find accidental slow access patterns.
func (c *Config) SetAllowScalar(v bool) { c.allowScalar.Store(v) }

// LoadConfig reads a Config from DISKARRAY_* environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DISKARRAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return ConfigFromViper(v)
}

// ConfigFromViper builds a Config from the keys chunk_size (a byte size such
// as "100MB"), fallback_element_size and allow_scalar. Missing keys keep
// their defaults.
func ConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg := NewConfig()
	v.SetDefault("chunk_size", humanize.Bytes(DefaultChunkBytes))
	v.SetDefault("fallback_element_size", DefaultFallbackElementSize)
	v.SetDefault("allow_scalar", true)

	size, err := humanize.ParseBytes(v.GetString("chunk_size"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunk_size: %w", err)
	}
	cfg.SetChunkBytes(int64(size))

	elem := v.GetInt("fallback_element_size")
	if elem < 1 {
		return nil, fmt.Errorf("fallback_element_size must be positive, got %d", elem)
	}
	cfg.SetFallbackElementSize(elem)
	cfg.SetAllowScalar(v.GetBool("allow_scalar"))
	return cfg, nil
}
