package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joestump/bio-links/internal/build"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bio-links",
		Short: "A self-hosted link-in-bio page",
		Long:  "bio-links keeps an ordered list of links and serves it as a public page at /u/{username}.",
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.String())
		},
	}
}
