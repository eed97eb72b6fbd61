package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "logserver",
		Short: "Per-user append-only log server",
		Long: "logserver stores one append-only log per user. Each connection carries one request;\n" +
			"reads and appends are authorized with RS256 bearer tokens issued by the server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before LOGSERVER_ environment variables")

	rootCmd.AddCommand(newServeCmd(), newKeygenCmd())
	addClientCommands(rootCmd)
	return rootCmd
}
