package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	version = "dev" // Will be set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "agent-finder",
	Short: "Find listing agents for property addresses",
	Long: `Agent Finder resolves listing agents for batches of property addresses
by querying public listing sites, and aggregates for-sale-by-owner
listings across FSBO marketplaces. Results are cached locally so reruns
only pay for what is still missing.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(cacheCmd)
}

// Commands are defined in separate files:
// - runCmd in run.go
// - serveCmd in serve.go
// - validateCmd in validate.go
// - cacheCmd in cache.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
