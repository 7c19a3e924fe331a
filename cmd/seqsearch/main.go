package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/seqsearch/internal/config"
	"github.com/kailas-cloud/seqsearch/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "seqsearch",
	Short: "Asynchronous BLAST sequence search service",
	Long: `seqsearch accepts protein and nucleotide queries over HTTP, runs them
through BLAST+ against a local search index and serves enriched results
to polling clients.

Examples:
  seqsearch serve
  seqsearch --env prod index ensure
  seqsearch --config ./config/local.yaml identity load "sp|P69905|HBA_HUMAN"`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("env", config.GetEnv(), "environment name, selects config/<env>.yaml")
	rootCmd.PersistentFlags().String("config", "", "explicit config file path (overrides --env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(identityCmd)
}

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
