package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/listing-resolver/internal/ingest"
)

var (
	importFormat string
	importSheet  string
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import reference vehicle listings",
	Long:  "Imports vehicle listings from a CSV, XLSX or JSON file into the document store, where they serve similar-vehicle lookups.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := ingest.ImportFile(ctx, st, args[0], ingest.Options{
			Format: importFormat,
			Sheet:  importSheet,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}

func init() {
	importCmd.Flags().StringVar(&importFormat, "format", "", "input format: csv, xlsx or json (default from extension)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	rootCmd.AddCommand(importCmd)
}
