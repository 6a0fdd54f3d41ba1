package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Polkamarkets/particle-bundler-server/bundler"
)

var (
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run bundler",
		Long: `Initialize and run the bundler lifecycle service.

Use --config=path-to-your-config-file. default is=./config/bundler.yaml `,
		Run: func(cmd *cobra.Command, args []string) {
			bundler.RunWithConfig(config)
		},
	}
)

func init() {
	runCmd.Flags().StringVar(&config, "config", "./config/bundler.yaml", "path to bundler config file")
	rootCmd.AddCommand(runCmd)
}
