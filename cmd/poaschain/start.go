package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orryx/poaschain/internal/config"
	"github.com/orryx/poaschain/internal/node"
)

func startCmd() *cobra.Command {
	var configPath string
	var dataDir string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the node and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}

			logger := newLogger()
			n, err := node.New(cfg, logger)
			if err != nil {
				return err
			}
			defer n.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n.Run(ctx)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.toml", "path to the TOML configuration file")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "override the configured data directory")
	return cmd
}
