package main

import (
	"fmt"

	"github.com/aretw0/statestack"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of statestack",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "statestack version %s\n", statestack.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
