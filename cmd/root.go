package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pidreview/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "pidreview",
	Short: "pidreview - extraction reconciliation and validation for P&ID drawings",
	Long: `pidreview ingests raw symbol-detector and OCR output for scanned
engineering drawings, reconciles them into a cross-referenced component
record, and manages the human validation workflow that gates export.

Run 'pidreview extract' for one-shot reconciliation of a page, or
'pidreview serve' to start the validation API.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
