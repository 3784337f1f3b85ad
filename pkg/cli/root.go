package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stompd",
	Short: "stompd is a STOMP publish/subscribe broker",
	Long: `stompd accepts STOMP 1.2 clients over TCP and WebSocket, authenticates them,
and fans out every SEND to all current subscribers of its destination.

Settings come from STOMPD_* environment variables (a .env file in the working
directory is read first) and are overridden by command-line flags.`,
	SilenceUsage:  true,
	SilenceErrors: true, // Execute prints the error
}

// Execute runs the root command. It is called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
