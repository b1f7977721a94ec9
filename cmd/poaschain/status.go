package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orryx/poaschain/internal/storage"
)

func statusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a summary of the local chain database",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			// Find the highest stored block by walking the number index.
			var height uint64
			var headHash string
			for n := uint64(0); ; n++ {
				block, err := store.GetBlockByNumber(n)
				if err != nil {
					return err
				}
				if block == nil {
					break
				}
				height = n
				headHash = block.Hash().String()
			}

			validatorCount := 0
			if validators, err := store.LoadValidatorSet(); err == nil {
				validatorCount = len(validators)
			} else if err != storage.ErrNotFound {
				return err
			}

			out := map[string]interface{}{
				"data_dir":   cfg.DataDir,
				"height":     height,
				"head_hash":  headHash,
				"validators": validatorCount,
				"pruning":    cfg.Storage.Pruning,
			}
			raw, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.toml", "path to the TOML configuration file")
	return cmd
}
