package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trendwatch/internal/dataset"
	"github.com/sells-group/trendwatch/internal/model"
)

var (
	promoteEntitiesFile string
	promoteKeep         bool
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Merge a saved partial window into the historical dataset",
	Long:  "Partial saves from aborted runs are never merged automatically. This command merges the partial file into the historical dataset and removes it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		entities, err := loadEntities(promoteEntitiesFile)
		if err != nil {
			return err
		}
		files := initFileStore()

		partial, err := files.LoadPartial()
		if err != nil {
			if os.IsNotExist(eris.Cause(err)) {
				fmt.Fprintln(os.Stderr, "No partial file to promote.")
				return nil
			}
			return err
		}
		if partial.Empty() {
			fmt.Fprintln(os.Stderr, "Partial file is empty, nothing to promote.")
			return nil
		}

		historical, exists, err := files.LoadHistorical()
		if err != nil {
			return err
		}
		if !exists {
			zap.L().Info("no historical dataset, promoting partial as the initial dataset")
		}

		merged := dataset.Merge(historical, partial, model.EntityNames(entities))
		if err := files.SaveHistorical(merged); err != nil {
			return err
		}

		if !promoteKeep {
			if err := files.RemovePartial(); err != nil {
				zap.L().Warn("partial file promoted but not removed", zap.Error(err))
			}
		}

		first, last := merged.DateRange()
		fmt.Fprintf(os.Stdout, "promoted %d days into %s (%s .. %s)\n",
			len(partial.Rows), files.CSVPath,
			first.Format(dataset.DateLayout), last.Format(dataset.DateLayout))
		return nil
	},
}

func init() {
	promoteCmd.Flags().StringVar(&promoteEntitiesFile, "entities", "", "entities file (default from config)")
	promoteCmd.Flags().BoolVar(&promoteKeep, "keep", false, "keep the partial file after promoting")
	rootCmd.AddCommand(promoteCmd)
}
