// Package commands implements the kfabricctl CLI: a thin client over
// kfabricd's read-only control-plane HTTP API.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// addr is the control-plane base address, e.g. "localhost:8080".
	addr string
)

var rootCmd = &cobra.Command{
	Use:   "kfabricctl",
	Short: "kfabricctl - inspect a running kfabricd daemon",
	Long: `kfabricctl queries a kfabricd daemon's control-plane API for its
discovered devices, their queue pairs, memory-region cache occupancy, and
progress-engine configuration.

Use "kfabricctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command. Called once by
// main.main.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "localhost:8080", "kfabricd control-plane address")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(qpsCmd)
	rootCmd.AddCommand(mrcacheCmd)
	rootCmd.AddCommand(progressCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("kfabricctl %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}
