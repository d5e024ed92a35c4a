package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gosubarr",
		Short: "Subtitle acquisition for a media library",
		Long: `gosubarr - subtitle acquisition for a media library

Scans the library on a schedule, queries subtitle providers, scores the
candidates against each video and stores the best match next to it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("gosubarr {{.Version}}\n")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newLedgerCommand())
	rootCmd.AddCommand(newIgnoreCommand())

	return rootCmd
}
