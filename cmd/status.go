package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appconfig "github.com/Polkamarkets/particle-bundler-server/core/config"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

var (
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Display system status",
		Long:  `Display status information about queued user operations in the database`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()

			cfg, err := appconfig.NewConfig(config)
			if err != nil {
				fmt.Fprintf(out, "❌ Failed to parse config file %s: %v\n", config, err)
				os.Exit(1)
			}

			fmt.Fprintf(out, "📊 System Status Report\n")
			fmt.Fprintf(out, "======================\n\n")
			fmt.Fprintf(out, "💾 Using database path: %s\n\n", cfg.DbPath)

			db, err := storage.NewWithPath(cfg.DbPath)
			if err != nil {
				fmt.Fprintf(out, "❌ Failed to initialize database: %v\n", err)
				fmt.Fprintf(out, "   💡 Make sure the bundler has been started at least once\n")
				os.Exit(1)
			}
			defer db.Close()

			// Queued operations live in the local status index
			kvs, err := db.GetByPrefix([]byte("uol:"))
			if err != nil {
				fmt.Fprintf(out, "❌ Failed to query queued operations: %v\n", err)
				os.Exit(1)
			}

			fmt.Fprintf(out, "💾 Database Status:\n")
			fmt.Fprintf(out, "   Queued user operations in database: %d\n\n", len(kvs))

			if len(kvs) > 0 {
				fmt.Fprintf(out, "📋 Queued Operations:\n")
				for i, item := range kvs {
					if i >= 10 {
						fmt.Fprintf(out, "   ... and %d more operations\n", len(kvs)-10)
						break
					}
					fmt.Fprintf(out, "   %d. %s\n", i+1, string(item.Key))
				}
				fmt.Fprintf(out, "\n")
			}

			fmt.Fprintf(out, "💡 Troubleshooting:\n")
			if len(kvs) == 0 {
				fmt.Fprintf(out, "   ❌ No queued user operations found in database\n")
				fmt.Fprintf(out, "   ✅ Submit an operation through the rpc service\n")
				fmt.Fprintf(out, "   ✅ Restart the bundler to see queue count logs\n")
			} else {
				fmt.Fprintf(out, "   ✅ %d queued user operations found in database\n", len(kvs))
				fmt.Fprintf(out, "   ✅ Operations should be picked up on the next bundling round\n")
			}
		},
	}
)

func init() {
	rootCmd.AddCommand(statusCmd)
}
