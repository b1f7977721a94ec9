// Package config loads the node's TOML configuration file. The loader
// is a plain struct-of-structs decode: every tunable flows through the
// file, with one environment variable (POASCHAIN_LOG_LEVEL) reserved
// for the log level so operators can raise verbosity without editing
// the config.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the root of the TOML document at <data_dir>/config.toml.
type Config struct {
	DataDir string `toml:"data_dir"`

	Network      NetworkConfig      `toml:"network"`
	RPC          RPCConfig          `toml:"rpc"`
	Consensus    ConsensusConfig    `toml:"consensus"`
	Storage      StorageConfig      `toml:"storage"`
	Mempool      MempoolConfig      `toml:"mempool"`
	ForkHandling ForkHandlingConfig `toml:"fork_handling"`
	Metrics      MetricsConfig      `toml:"metrics"`
}

type NetworkConfig struct {
	ListenAddr     string   `toml:"listen_addr"`
	MaxPeers       int      `toml:"max_peers"`
	BootstrapPeers []string `toml:"bootstrap_peers"`
}

type RPCConfig struct {
	Enabled     bool     `toml:"enabled"`
	ListenAddr  string   `toml:"listen_addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

type ConsensusConfig struct {
	MinStake         int64 `toml:"min_stake"`
	BlockTimeSeconds int   `toml:"block_time_seconds"`
}

type StorageConfig struct {
	CacheSizeMB  int    `toml:"cache_size_mb"`
	MaxOpenFiles int    `toml:"max_open_files"`
	Pruning      string `toml:"pruning"` // "archive" or "pruned"
	KeepBlocks   uint64 `toml:"keep_blocks"`
}

type MempoolConfig struct {
	MaxSize              int    `toml:"max_size"`
	MaxPerAccount        int    `toml:"max_per_account"`
	MinGasPrice          uint64 `toml:"min_gas_price"`
	MaxAgeSeconds        int    `toml:"max_age"`
	EnableReplacement    bool   `toml:"enable_replacement"`
	PruneIntervalSeconds int    `toml:"prune_interval_seconds"`
}

type ForkHandlingConfig struct {
	ForkChoice          string `toml:"fork_choice"` // longest_chain | heaviest_chain | latest_justified
	MaxReorgDepth       int    `toml:"max_reorg_depth"`
	EnableForkAlerts    bool   `toml:"enable_fork_alerts"`
	AlertThresholdDepth int    `toml:"alert_threshold_depth"`
}

type MetricsConfig struct {
	WindowSize       int    `toml:"window_size"`
	EnableCollection bool   `toml:"enable_collection"`
	SnapshotInterval uint64 `toml:"snapshot_interval"`
}

// Default returns the configuration used when a field is absent from
// the file.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Network: NetworkConfig{
			ListenAddr: "0.0.0.0:30303",
			MaxPeers:   50,
		},
		RPC: RPCConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:8545",
		},
		Consensus: ConsensusConfig{
			MinStake:         1000,
			BlockTimeSeconds: 5,
		},
		Storage: StorageConfig{
			CacheSizeMB:  128,
			MaxOpenFiles: 512,
			Pruning:      "archive",
			KeepBlocks:   10_000,
		},
		Mempool: MempoolConfig{
			MaxSize:              10_000,
			MaxPerAccount:        100,
			MinGasPrice:          1,
			MaxAgeSeconds:        3600,
			EnableReplacement:    true,
			PruneIntervalSeconds: 60,
		},
		ForkHandling: ForkHandlingConfig{
			ForkChoice:          "longest_chain",
			MaxReorgDepth:       100,
			EnableForkAlerts:    true,
			AlertThresholdDepth: 10,
		},
		Metrics: MetricsConfig{
			WindowSize:       100,
			EnableCollection: true,
			SnapshotInterval: 100,
		},
	}
}

// Load decodes path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", filepath.Base(path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the node cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must be set")
	}
	if c.Consensus.BlockTimeSeconds <= 0 {
		return fmt.Errorf("config: consensus.block_time_seconds must be positive")
	}
	if c.Consensus.MinStake < 0 {
		return fmt.Errorf("config: consensus.min_stake must not be negative")
	}
	switch c.Storage.Pruning {
	case "archive", "pruned":
	default:
		return fmt.Errorf("config: storage.pruning must be \"archive\" or \"pruned\", got %q", c.Storage.Pruning)
	}
	switch c.ForkHandling.ForkChoice {
	case "longest_chain", "heaviest_chain", "latest_justified":
	default:
		return fmt.Errorf("config: fork_handling.fork_choice %q is not a known rule", c.ForkHandling.ForkChoice)
	}
	if c.Mempool.MaxSize <= 0 {
		return fmt.Errorf("config: mempool.max_size must be positive")
	}
	if c.ForkHandling.MaxReorgDepth <= 0 {
		return fmt.Errorf("config: fork_handling.max_reorg_depth must be positive")
	}
	return nil
}

// LogLevel reads the single environment toggle the node honors,
// defaulting to "info".
func LogLevel() string {
	if v := os.Getenv("POASCHAIN_LOG_LEVEL"); v != "" {
		return v
	}
	return "info"
}

// DBDir returns the database directory under the data dir.
func (c *Config) DBDir() string { return filepath.Join(c.DataDir, "db") }

// GenesisPath returns the genesis file location under the data dir.
func (c *Config) GenesisPath() string { return filepath.Join(c.DataDir, "genesis.json") }

// KeysDir returns the validator key directory under the data dir.
func (c *Config) KeysDir() string { return filepath.Join(c.DataDir, "keys") }
