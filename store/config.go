package store

import (
	"log/slog"

	"github.com/jacentio/rddb/internal/codec"
)

// DefaultIndexName is the secondary index keyed on (sk, data).
const DefaultIndexName = "sk-data-index"

// MaxConcurrency is the default bound on concurrent field and row resolutions.
const MaxConcurrency = 4

// Config holds configuration for the Store.
type Config struct {
	// TableName is the base table shared by every flat entity type and all metadata rows.
	// Time-series types use TableName + "-" + upper-cased type name.
	// Default: "rddb"
	TableName string

	// IndexName is the secondary index keyed on (sk, data).
	// Default: "sk-data-index"
	IndexName string

	// MaxConcurrency bounds in-flight resolutions when assembling records.
	// Default: 4
	// Max: 64
	MaxConcurrency int

	// DefaultMaxMagnitude is the magnitude used to encode numbers on fields
	// that do not declare one.
	// Default: 999999999999
	DefaultMaxMagnitude int64

	// ConcurrentMetadata issues schema/type writes concurrently with row writes.
	// When false (the default) metadata is durable before any row that needs it is written.
	ConcurrentMetadata bool

	// Logger receives debug and warning output. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TableName:           "rddb",
		IndexName:           DefaultIndexName,
		MaxConcurrency:      MaxConcurrency,
		DefaultMaxMagnitude: codec.DefaultMaxMagnitude,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = "rddb"
	}
	if c.IndexName == "" {
		c.IndexName = DefaultIndexName
	}
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = MaxConcurrency
	}
	if c.MaxConcurrency > 64 {
		c.MaxConcurrency = 64
	}
	if c.DefaultMaxMagnitude <= 0 {
		c.DefaultMaxMagnitude = codec.DefaultMaxMagnitude
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
