package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:           "rfpd",
	Short:         "Procurement RFPs: draft, send to vendors, collect and compare proposals",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
		return validateFormat(outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatJSON, "output format for data commands (json or yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(vendorsCmd)
	rootCmd.AddCommand(rfpsCmd)
	rootCmd.AddCommand(proposalsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
