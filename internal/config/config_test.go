package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir = "/var/lib/poaschain"

[consensus]
min_stake = 50000
block_time_seconds = 2

[storage]
pruning = "pruned"
keep_blocks = 128

[mempool]
max_size = 500
min_gas_price = 7

[fork_handling]
fork_choice = "latest_justified"
max_reorg_depth = 12
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DataDir != "/var/lib/poaschain" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if cfg.Consensus.MinStake != 50000 || cfg.Consensus.BlockTimeSeconds != 2 {
		t.Errorf("consensus = %+v", cfg.Consensus)
	}
	if cfg.Storage.Pruning != "pruned" || cfg.Storage.KeepBlocks != 128 {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Mempool.MaxSize != 500 || cfg.Mempool.MinGasPrice != 7 {
		t.Errorf("mempool = %+v", cfg.Mempool)
	}
	if cfg.ForkHandling.ForkChoice != "latest_justified" || cfg.ForkHandling.MaxReorgDepth != 12 {
		t.Errorf("fork_handling = %+v", cfg.ForkHandling)
	}

	// Untouched sections keep their defaults.
	if cfg.Network.MaxPeers != 50 {
		t.Errorf("network.max_peers = %d, want default 50", cfg.Network.MaxPeers)
	}
	if cfg.Mempool.MaxPerAccount != 100 {
		t.Errorf("mempool.max_per_account = %d, want default 100", cfg.Mempool.MaxPerAccount)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad pruning", "[storage]\npruning = \"sometimes\"\n"},
		{"bad fork choice", "[fork_handling]\nfork_choice = \"coin_flip\"\n"},
		{"zero block time", "[consensus]\nblock_time_seconds = 0\n"},
		{"zero mempool", "[mempool]\nmax_size = 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatal("Load accepted an invalid config")
			}
		})
	}
}

func TestLogLevelEnvToggle(t *testing.T) {
	t.Setenv("POASCHAIN_LOG_LEVEL", "debug")
	if got := LogLevel(); got != "debug" {
		t.Fatalf("LogLevel = %q, want debug", got)
	}
	t.Setenv("POASCHAIN_LOG_LEVEL", "")
	if got := LogLevel(); got != "info" {
		t.Fatalf("LogLevel default = %q, want info", got)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/x"
	if cfg.DBDir() != "/tmp/x/db" || cfg.GenesisPath() != "/tmp/x/genesis.json" || cfg.KeysDir() != "/tmp/x/keys" {
		t.Fatalf("derived paths: %s %s %s", cfg.DBDir(), cfg.GenesisPath(), cfg.KeysDir())
	}
}
