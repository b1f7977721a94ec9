package main

import (
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/spf13/cobra"

	"github.com/orryx/poaschain/internal/config"
	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/storage"
)

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database inspection and maintenance",
	}
	cmd.AddCommand(dbStatsCmd(), dbCompactCmd(), dbVerifyCmd(), dbPruneCmd())
	return cmd
}

// openStore opens the store described by the config at configPath.
func openStore(configPath string) (*storage.Store, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := dbm.NewGoLevelDB("poaschain", cfg.DBDir())
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	mode := storage.Archive
	if cfg.Storage.Pruning == "pruned" {
		mode = storage.Pruned
	}
	store := storage.Open(db, storage.Config{Mode: mode, KeepBlocks: cfg.Storage.KeepBlocks})
	return store, cfg, nil
}

func dbStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-family key counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			order, counts, err := store.FamilyCounts()
			if err != nil {
				return err
			}
			for _, name := range order {
				fmt.Printf("%-24s %d\n", name, counts[name])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.toml", "path to the TOML configuration file")
	return cmd
}

func dbCompactCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Trigger storage-level compaction across every family",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Compact(); err != nil {
				return err
			}
			newLogger().Info("compaction complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.toml", "path to the TOML configuration file")
	return cmd
}

func dbVerifyCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Walk the block index verifying hash linkage and transaction roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			logger := newLogger()
			var prevHash crypto.Hash
			verified := 0
			for n := uint64(0); ; n++ {
				block, err := store.GetBlockByNumber(n)
				if err != nil {
					return err
				}
				if block == nil {
					break
				}
				if n > 0 && block.Header.ParentHash != prevHash {
					return fmt.Errorf("block %d parent hash does not link to block %d", n, n-1)
				}
				if got, want := block.ComputeTransactionsRoot(), block.Header.TransactionsRoot; got != want {
					return fmt.Errorf("block %d transactions root mismatch", n)
				}
				prevHash = block.Hash()
				verified++
			}
			logger.Info("database verified", "blocks", verified)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.toml", "path to the TOML configuration file")
	return cmd
}

func dbPruneCmd() *cobra.Command {
	var configPath string
	var keepFrom uint64

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Discard state snapshots below the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(keepFrom)
			if err != nil {
				return err
			}
			newLogger().Info("pruned state snapshots", "removed", removed, "keep_from", keepFrom)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.toml", "path to the TOML configuration file")
	cmd.Flags().Uint64Var(&keepFrom, "keep-from", 0, "treat this block number as the current head for retention")
	return cmd
}
