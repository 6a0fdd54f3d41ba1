package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Polkamarkets/particle-bundler-server/version"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "get version",
	Long:  `get version of the binary`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s\n", version.Get())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
