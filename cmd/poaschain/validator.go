package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/spf13/cobra"

	"github.com/orryx/poaschain/internal/config"
	"github.com/orryx/poaschain/internal/consensus"
	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/storage"
	"github.com/orryx/poaschain/internal/types"
)

// keyFile is the on-disk shape of a validator key, written with
// restrictive permissions under <data_dir>/keys/.
type keyFile struct {
	Scheme     string `json:"scheme"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
	Address    string `json:"address"`
}

func validatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validator",
		Short: "Validator key and registration management",
	}
	cmd.AddCommand(validatorKeygenCmd(), validatorRegisterCmd())
	return cmd
}

func validatorKeygenCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new ed25519 validator key",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generating key: %w", err)
			}
			addr := crypto.DeriveAddress(pub)

			kf := keyFile{
				Scheme:     crypto.SchemeEd25519.String(),
				PrivateKey: hex.EncodeToString(priv),
				PublicKey:  hex.EncodeToString(pub),
				Address:    addr.String(),
			}
			raw, err := json.MarshalIndent(kf, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, raw, 0o600); err != nil {
				return fmt.Errorf("writing key file: %w", err)
			}

			newLogger().Info("validator key written", "path", output, "address", addr.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "validator_key.json", "where to write the key file")
	return cmd
}

func validatorRegisterCmd() *cobra.Command {
	var configPath string
	var keyPath string
	var stake int64
	var commissionBP uint32

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a validator into the durable validator set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(keyPath)
			if err != nil {
				return fmt.Errorf("reading key file: %w", err)
			}
			var kf keyFile
			if err := json.Unmarshal(raw, &kf); err != nil {
				return fmt.Errorf("parsing key file: %w", err)
			}
			addrBytes, err := hex.DecodeString(kf.Address)
			if err != nil {
				return fmt.Errorf("parsing key file address: %w", err)
			}
			addr, err := crypto.AddressFromBytes(addrBytes)
			if err != nil {
				return err
			}

			db, err := dbm.NewGoLevelDB("poaschain", cfg.DBDir())
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			store := storage.Open(db, storage.Config{})
			defer store.Close()

			set := consensus.NewValidatorSet(types.NewAmount(cfg.Consensus.MinStake), 21*24*time.Hour)
			if existing, err := store.LoadValidatorSet(); err == nil {
				set.Restore(existing)
			} else if err != storage.ErrNotFound {
				return err
			}

			if err := set.Register(addr, types.NewAmount(stake), commissionBP, time.Now()); err != nil {
				return err
			}
			if err := store.StoreValidatorSet(set.Snapshot()); err != nil {
				return err
			}

			newLogger().Info("validator registered",
				"address", addr.String(), "stake", stake, "commission_bp", commissionBP)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.toml", "path to the TOML configuration file")
	cmd.Flags().StringVar(&keyPath, "key", "validator_key.json", "validator key file")
	cmd.Flags().Int64Var(&stake, "stake", 0, "stake amount to register with")
	cmd.Flags().Uint32Var(&commissionBP, "commission", 0, "commission rate in basis points")
	return cmd
}
