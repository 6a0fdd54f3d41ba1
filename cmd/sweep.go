package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appconfig "github.com/Polkamarkets/particle-bundler-server/core/config"
	"github.com/Polkamarkets/particle-bundler-server/core/userop"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

var (
	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Delete abandoned user operations",
		Long: `Run one cleanup round over every configured chain, removing user
operations that were admitted but never bundled, then compact the value log.

The bundler must not be running, badger allows a single writer process.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := appconfig.NewConfig(config)
			if err != nil {
				fmt.Printf("Failed to parse config file %s: %v\n", config, err)
				os.Exit(1)
			}

			db, err := storage.NewWithPath(cfg.DbPath)
			if err != nil {
				fmt.Printf("Failed to open database: %v\n", err)
				os.Exit(1)
			}
			defer db.Close()

			mgr := userop.NewLifecycleManager(db, cfg, userop.NewTransactionStore(db), cfg.Logger)
			cleaner, err := userop.NewCleaner(mgr, db, cfg, cfg.Logger)
			if err != nil {
				fmt.Printf("Failed to initialize cleaner: %v\n", err)
				os.Exit(1)
			}

			cleaner.Sweep()
			fmt.Printf("Sweep completed\n")
		},
	}
)

func init() {
	rootCmd.AddCommand(sweepCmd)
}
