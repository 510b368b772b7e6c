package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hubcli",
		Short: "Talk to a SignalR hub from the command line",
		Long: `hubcli opens a hub connection over WebSockets and lets you invoke methods,
fire-and-forget calls, consume server streams and watch pushed calls.

Arguments are parsed as JSON when they are valid JSON, and sent as strings otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := bindConnectionFlags(rootCmd)

	rootCmd.AddCommand(
		invokeCmd(flags),
		sendCmd(flags),
		streamCmd(flags),
		listenCmd(flags),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hubcli %s (%s)\n", version, commit)
		},
	}
}
