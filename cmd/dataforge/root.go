package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/dataforge/core/formatter"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	noHeader     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dataforge",
	Short: "Lazy data trees and reactive configuration",
	Long: `dataforge serves hierarchical configuration and lazily computed data.

Meta files (json, yaml, cbor) describe configuration trees. A data
directory becomes a tree of items that are read only when needed.

Quick start:
  dataforge meta flatten run.yaml   # Print every value of a meta file
  dataforge serve                   # Start the HTTP server

Storage:
  dataforge store save run run.yaml # Snapshot a meta file
  dataforge store list              # List snapshots`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "dataforge.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&noHeader, "no-header", false, "omit table headers")
}

// output returns the formatter selected by --output.
func output() (formatter.Formatter, formatter.FormatOptions, error) {
	f, ok := formatter.Get(outputFormat)
	if !ok {
		return nil, formatter.FormatOptions{}, fmt.Errorf("unknown output format %q (available: %v)", outputFormat, formatter.List())
	}
	return f, formatter.FormatOptions{NoHeader: noHeader}, nil
}
