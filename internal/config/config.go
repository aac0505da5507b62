// Package config loads Brain's YAML configuration, following the teacher's
// one-struct-per-concern layout (internal/config/config.go).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"brain/internal/logging"
)

// Config holds all Brain configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Store     StoreConfig     `yaml:"store"`
	Memory    MemoryConfig    `yaml:"memory"`
	Session   SessionConfig   `yaml:"session"`
	Execution ExecutionConfig `yaml:"execution"`
	Worker    WorkerConfig    `yaml:"worker"`
	Logging   logging.Config  `yaml:"logging"`
}

// StoreConfig controls the embedded SQLite store.
type StoreConfig struct {
	// Path is the SQLite file path. Empty means DataDir/brain.db.
	Path string `yaml:"path"`
	// MmapSizeBytes bounds the memory-mapped I/O region (0 disables mmap).
	MmapSizeBytes int64 `yaml:"mmap_size_bytes"`
	// CacheSizeKiB sets PRAGMA cache_size (negative means KiB in sqlite).
	CacheSizeKiB int `yaml:"cache_size_kib"`
}

// MemoryConfig controls the tiered memory store (C1).
type MemoryConfig struct {
	// HotCapacity is the steady-state upper bound on hot rows (spec default 300).
	HotCapacity int `yaml:"hot_capacity"`
	// HotPromotionCeiling leaves headroom for new writes during rebalance (spec default 250).
	HotPromotionCeiling int `yaml:"hot_promotion_ceiling"`
	// CompressionThresholdBytes is the size above which values are compressed.
	CompressionThresholdBytes int `yaml:"compression_threshold_bytes"`
	// MaxValueBytes rejects sets above this size outright.
	MaxValueBytes int `yaml:"max_value_bytes"`
	// RebalanceInterval is the maintenance cadence (spec default ~1h).
	RebalanceInterval time.Duration `yaml:"rebalance_interval"`
}

// SessionConfig controls ephemeral session lifecycle (C3).
type SessionConfig struct {
	// Timeout is the inactivity duration after which a session is reaped (spec default 24h).
	Timeout time.Duration `yaml:"timeout"`
	// CleanupInterval is the reaper cadence (spec default ~5m).
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// ExecutionConfig controls the code execution queue (C2, server side).
type ExecutionConfig struct {
	// WallClockLimit is the SIGTERM/SIGKILL deadline per job (spec default 5m).
	WallClockLimit time.Duration `yaml:"wall_clock_limit"`
	// KillGrace is the SIGTERM-to-SIGKILL grace interval.
	KillGrace time.Duration `yaml:"kill_grace"`
	// InlineOutputCapBytes is the per-stream byte ceiling before truncation (spec default 1MiB).
	InlineOutputCapBytes int `yaml:"inline_output_cap_bytes"`
	// MaxRetries bounds retry_count for stale-claim recovery.
	MaxRetries int `yaml:"max_retries"`
	// LogDir is where <id>.out/<id>.err/<id>.overflow files live.
	LogDir string `yaml:"log_dir"`
	// StaleClaimThreshold is how long a running row may go without a live
	// worker heartbeat before the sweeper reclaims it.
	StaleClaimThreshold time.Duration `yaml:"stale_claim_threshold"`
	// StaleClaimSweepInterval is the sweeper cadence (spec default ~1m).
	StaleClaimSweepInterval time.Duration `yaml:"stale_claim_sweep_interval"`
}

// WorkerConfig controls the worker process pool.
type WorkerConfig struct {
	// MinConcurrency/MaxConcurrency bound the worker goroutine count (spec default 1..4).
	MinConcurrency int `yaml:"min_concurrency"`
	MaxConcurrency int `yaml:"max_concurrency"`
	// PollInterval is how often an idle worker retries the claim when no job was available.
	PollInterval time.Duration `yaml:"poll_interval"`
	// HeartbeatInterval is how often a worker refreshes its liveness marker.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// FlushInterval/FlushBytes/FlushLines implement the §4.2 flush policy.
	FlushInterval time.Duration `yaml:"flush_interval"`
	FlushBytes    int           `yaml:"flush_bytes"`
	FlushLines    int           `yaml:"flush_lines"`
}

// DefaultConfig returns Brain's out-of-the-box configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Store: StoreConfig{
			MmapSizeBytes: 64 << 20,
			CacheSizeKiB:  8192,
		},
		Memory: MemoryConfig{
			HotCapacity:               300,
			HotPromotionCeiling:       250,
			CompressionThresholdBytes: 1024,
			MaxValueBytes:             8 << 20,
			RebalanceInterval:         time.Hour,
		},
		Session: SessionConfig{
			Timeout:         24 * time.Hour,
			CleanupInterval: 5 * time.Minute,
		},
		Execution: ExecutionConfig{
			WallClockLimit:          5 * time.Minute,
			KillGrace:               5 * time.Second,
			InlineOutputCapBytes:    1 << 20,
			MaxRetries:              3,
			LogDir:                  "./data/executions",
			StaleClaimThreshold:     2 * time.Minute,
			StaleClaimSweepInterval: time.Minute,
		},
		Worker: WorkerConfig{
			MinConcurrency:    1,
			MaxConcurrency:    4,
			PollInterval:      500 * time.Millisecond,
			HeartbeatInterval: 10 * time.Second,
			FlushInterval:     time.Second,
			FlushBytes:        10 << 10,
			FlushLines:        100,
		},
		Logging: logging.Config{Dev: false},
	}
}

// Load reads a YAML config file at path, layering it over DefaultConfig, then
// applies environment-variable overrides. A missing file is not an error:
// the defaults (plus env overrides) are returned as-is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if cfg.Store.Path == "" {
		cfg.Store.Path = cfg.DataDir + "/brain.db"
	}
	return cfg, nil
}

// applyEnvOverrides flips the handful of knobs operators need without
// editing the config file, per SPEC_FULL.md A.3.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BRAIN_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("BRAIN_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Worker.MaxConcurrency = n
		}
	}
	if v := os.Getenv("BRAIN_SESSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.Timeout = d
		}
	}
}
