package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ctrise/grantmatch/internal/export"
	"github.com/ctrise/grantmatch/internal/table"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ranked table as CSV, XLSX, or PDF",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tab, err := table.Load(cfg.Table.Path)
		if err != nil {
			return err
		}

		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return eris.Wrapf(err, "create %s", exportOutput)
			}
			defer f.Close()
			out = f
		} else if format != export.FormatCSV {
			return eris.Errorf("%s export requires --output", format)
		}

		if err := export.Write(out, format, tab.Ranked()); err != nil {
			return err
		}

		if exportOutput != "" {
			fmt.Printf("wrote %d grant(s) to %s\n", tab.Len(), exportOutput)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "export format: csv, xlsx, or pdf")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (csv defaults to stdout)")
	rootCmd.AddCommand(exportCmd)
}
