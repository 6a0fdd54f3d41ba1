package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var (
	config  = "./config/bundler.yaml"
	rootCmd = &cobra.Command{
		Use:   "particle-bundler",
		Short: "Particle bundler CLI",
		Long: `CLI to run and interact with the user operation bundler.
Each sub command can be used for a single service

Such as "particle-bundler run" or "particle-bundler status" and so on
`,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&config, "config", "c", "config/bundler.yaml", "Path to config file")
}
