package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "comment-scroll",
		Short:        "Scroll through a paginated comments feed",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ./comment-scroll.yaml)")

	rootCmd.AddCommand(
		newScrollCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "comment-scroll %s\n", version)
		},
	}
}
