// Package config loads the buffer pool's runtime configuration from a
// YAML file, the way the rest of this repository loads configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// BufferPool holds every tunable named in the buffer pool's
// configuration surface: sizing, eviction policy selection, swizzling,
// warmup, and the handful of feature gates (cleaner decoupling, async
// eviction, EMLSN maintenance, write elision, no-db mode).
type BufferPool struct {
	BufferPoolSizeMiB int    `mapstructure:"buffer_pool_size_mib"`
	Eviction          string `mapstructure:"eviction_policy"` // "select_filter", "car", "leanstore"

	CleanerDecoupled bool `mapstructure:"cleaner_decoupled"`
	AsyncEviction    bool `mapstructure:"async_eviction"`
	MaintainEMLSN    bool `mapstructure:"maintain_emlsn"`
	WriteElision     bool `mapstructure:"write_elision"`
	NoDB             bool `mapstructure:"no_db"`
	LogFetches       bool `mapstructure:"log_fetches"`
	LogEvictions     bool `mapstructure:"log_evictions"`
	FlushDirtyOnEvict bool `mapstructure:"flush_dirty_on_evict"`

	Swizzling bool `mapstructure:"swizzling"`

	BatchSegmentSize int `mapstructure:"batch_segment_size"`

	WarmupHitRatio float64 `mapstructure:"warmup_hit_ratio"`
	WarmupMinFixes int     `mapstructure:"warmup_min_fixes"`

	EvictionBatchSize     int `mapstructure:"eviction_batch_size"`
	EvictionMaxAttempts   int `mapstructure:"eviction_max_attempts"`
	WakeupCleanerAttempts int `mapstructure:"wakeup_cleaner_attempts"`

	SelectFilter SelectFilterConfig `mapstructure:"select_filter"`
	CAR          CARConfig          `mapstructure:"car"`
	LeanStore    LeanStoreConfig    `mapstructure:"leanstore"`
}

type SelectFilterConfig struct {
	Selector   string `mapstructure:"selector"` // "loop", "random"
	Filter     string `mapstructure:"filter"`   // "none", "clock", "gclock"
	EarlyExit  bool   `mapstructure:"early_exit"`
	GCLOCKInit int    `mapstructure:"gclock_init"`
}

type CARConfig struct {
	// p, the adaptive target size for T1, starts at 0 and is tuned at
	// runtime; nothing here needs to be configured up front beyond the
	// pool's overall frame count.
}

type LeanStoreConfig struct {
	CoolingStageFraction float64 `mapstructure:"cooling_stage_fraction"`
}

func defaults() BufferPool {
	return BufferPool{
		BufferPoolSizeMiB:     512,
		Eviction:              "select_filter",
		AsyncEviction:         true,
		MaintainEMLSN:         true,
		Swizzling:             true,
		BatchSegmentSize:      16,
		WarmupHitRatio:        0.99,
		WarmupMinFixes:        10_000,
		EvictionBatchSize:     64,
		EvictionMaxAttempts:   10 * 1000,
		WakeupCleanerAttempts: 10,
		FlushDirtyOnEvict:     true,
		SelectFilter: SelectFilterConfig{
			Selector:   "loop",
			Filter:     "clock",
			GCLOCKInit: 5,
		},
		LeanStore: LeanStoreConfig{
			CoolingStageFraction: 0.1,
		},
	}
}

// Load reads path as YAML and unmarshals it over the package defaults,
// so a config file only needs to name the fields it overrides.
func Load(path string) (*BufferPool, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	cfg := defaults()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration, for callers (and tests)
// that do not load a file.
func Default() *BufferPool {
	cfg := defaults()
	return &cfg
}
