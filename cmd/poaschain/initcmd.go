package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/orryx/poaschain/internal/node"
)

// defaultConfigTOML is the config file init writes; every value
// matches config.Default so a fresh node runs unedited.
const defaultConfigTOML = `data_dir = %q

[network]
listen_addr = "0.0.0.0:30303"
max_peers = 50
bootstrap_peers = []

[rpc]
enabled = true
listen_addr = "127.0.0.1:8545"
cors_origins = []

[consensus]
min_stake = 1000
block_time_seconds = 5

[storage]
cache_size_mb = 128
max_open_files = 512
pruning = "archive"
keep_blocks = 10000

[mempool]
max_size = 10000
max_per_account = 100
min_gas_price = 1
max_age = 3600
enable_replacement = true
prune_interval_seconds = 60

[fork_handling]
fork_choice = "longest_chain"
max_reorg_depth = 100
enable_fork_alerts = true
alert_threshold_depth = 10

[metrics]
window_size = 100
enable_collection = true
snapshot_interval = 100
`

func initCmd() *cobra.Command {
	var dataDir string
	var genesisPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a data directory with config, genesis, and key storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			for _, dir := range []string{dataDir, filepath.Join(dataDir, "db")} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("creating %s: %w", dir, err)
				}
			}
			if err := os.MkdirAll(filepath.Join(dataDir, "keys"), 0o700); err != nil {
				return fmt.Errorf("creating key directory: %w", err)
			}

			configFile := filepath.Join(dataDir, "config.toml")
			if _, err := os.Stat(configFile); os.IsNotExist(err) {
				body := fmt.Sprintf(defaultConfigTOML, dataDir)
				if err := os.WriteFile(configFile, []byte(body), 0o644); err != nil {
					return fmt.Errorf("writing config: %w", err)
				}
				logger.Info("wrote config", "path", configFile)
			} else {
				logger.Info("config already exists, leaving it untouched", "path", configFile)
			}

			genesisFile := filepath.Join(dataDir, "genesis.json")
			if _, err := os.Stat(genesisFile); err == nil {
				logger.Info("genesis already exists, leaving it untouched", "path", genesisFile)
				return nil
			}

			if genesisPath != "" {
				if err := copyFile(genesisPath, genesisFile); err != nil {
					return fmt.Errorf("importing genesis: %w", err)
				}
				logger.Info("imported genesis", "from", genesisPath, "to", genesisFile)
				return nil
			}

			genesis, err := node.WriteGenesis(genesisFile)
			if err != nil {
				return err
			}
			logger.Info("wrote genesis", "path", genesisFile, "hash", genesis.Hash().String())
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "data directory to initialize")
	cmd.Flags().StringVar(&genesisPath, "genesis", "", "import an existing genesis file instead of synthesizing one")
	return cmd
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
