package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"gorged/version"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Prints the gorged version",
	Annotations: map[string]string{noDatabase: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.AppVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
