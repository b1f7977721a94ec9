// Command poaschain is the node CLI: start the node, initialize a data
// directory, manage validator keys and registration, and inspect or
// maintain the database.
package main

import (
	"os"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/cobra"

	"github.com/orryx/poaschain/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:           "poaschain",
		Short:         "Proof-of-Active-Stake blockchain node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		startCmd(),
		initCmd(),
		validatorCmd(),
		dbCmd(),
		statusCmd(),
	)

	if err := root.Execute(); err != nil {
		newLogger().Error("command failed", "err", err.Error())
		os.Exit(1)
	}
}

// newLogger builds the CLI's structured logger, honoring the
// POASCHAIN_LOG_LEVEL environment toggle.
func newLogger() cmtlog.Logger {
	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stderr))
	option, err := cmtlog.AllowLevel(config.LogLevel())
	if err != nil {
		option = cmtlog.AllowInfo()
	}
	return cmtlog.NewFilter(logger, option)
}
