// Package config loads the recognised options table (spec §6) from a TOML
// file via an afero filesystem, so tests can exercise config loading
// against an in-memory FS instead of disk.
package config

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// Config holds the recognised configuration options.
type Config struct {
	// EnableGroupingSets allows the Batch Grouping & Rollup stage to fuse
	// compatible batches into a single grouping-sets SQL statement.
	EnableGroupingSets bool `toml:"enable_grouping_sets"`
	// UseAggregates is loaded but not read by any component: whether the
	// Segment Loader targets aggregate tables depends only on the
	// AggregateCatalog passed to loader.New.
	UseAggregates bool `toml:"use_aggregates"`
	// DisableCaching is loaded but not read by any component; the in-memory
	// cache worker is always in use.
	DisableCaching bool `toml:"disable_caching"`
	// MaxConstraints upper-bounds an IN (...) list length before it
	// collapses to TRUE.
	MaxConstraints int `toml:"max_constraints"`
	// OptimizePredicates enables bloat-based constraint elimination.
	OptimizePredicates bool `toml:"optimize_predicates"`
	// GenerateAggregateSql is loaded but not read by any component; no
	// aggregate-table DDL is generated or logged.
	GenerateAggregateSql bool `toml:"generate_aggregate_sql"`

	// InMemoryCacheEntries bounds the Cache Worker Pool's in-memory LRU.
	InMemoryCacheEntries int `toml:"in_memory_cache_entries"`
	// SQLPoolWidth bounds the Segment Loader's concurrent fact-query pool.
	SQLPoolWidth int `toml:"sql_pool_width"`
	// CellRequestQuantum is the Batch Reader's early-flush threshold.
	CellRequestQuantum int `toml:"cell_request_quantum"`
	// BloatEliminationLimit is the running-product threshold for
	// OptimizePredicates: while the product of bloat ratios is above it, the
	// highest-bloat constraint is replaced with TRUE.
	BloatEliminationLimit float64 `toml:"bloat_elimination_limit"`
}

// Default returns the configuration spec.md's components assume when no
// file overrides them.
func Default() *Config {
	return &Config{
		EnableGroupingSets:    true,
		UseAggregates:         true,
		DisableCaching:        false,
		MaxConstraints:        1000,
		OptimizePredicates:    true,
		GenerateAggregateSql:  false,
		InMemoryCacheEntries:  100,
		SQLPoolWidth:          10,
		CellRequestQuantum:    5000,
		BloatEliminationLimit: 0.5,
	}
}

// Load reads and parses a TOML config file through fs, overlaying it onto
// Default().
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
