package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/trendwatch/internal/dataset"
)

var validateFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a dataset file",
	Long:  "Checks the historical dataset (or any CSV given with --file) for missing dates, negative values and suspicious magnitudes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := validateFile
		if path == "" {
			path = initFileStore().CSVPath
		}

		ds, err := dataset.LoadCSV(path)
		if err != nil {
			return err
		}
		if err := dataset.Validate(ds); err != nil {
			return err
		}

		first, last := ds.DateRange()
		fmt.Fprintf(os.Stdout, "%s: ok (%d rows, %d entities, %s .. %s)\n",
			path, len(ds.Rows), len(ds.Columns),
			first.Format(dataset.DateLayout), last.Format(dataset.DateLayout))
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateFile, "file", "", "dataset CSV to validate (default: configured historical dataset)")
	rootCmd.AddCommand(validateCmd)
}
