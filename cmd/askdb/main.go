package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "askdb",
	Short:   "Ask natural-language questions about the procurement database",
	Version: version,
	Long: `askdb answers natural-language questions about California government
purchase orders by generating, validating, and running database aggregations.

Start the server with "askdb serve", load data with "askdb import", and ask
questions with "askdb ask".`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(examplesCmd)
}

func main() {
	// A local .env is optional; environment variables win.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
