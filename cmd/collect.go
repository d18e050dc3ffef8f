package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trendwatch/internal/collector"
	"github.com/sells-group/trendwatch/internal/store"
	"github.com/sells-group/trendwatch/pkg/trends"
)

var (
	collectEntitiesFile string
	collectDaysBack     int
	collectNoLedger     bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection cycle",
	Long:  "Fetches the recent window for every tracked entity, merges it into the historical dataset and records the run in the ledger. Interrupting saves fetched data to the partial file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		entities, err := loadEntities(collectEntitiesFile)
		if err != nil {
			return err
		}

		// The ledger is an audit trail: if it cannot be opened the run
		// proceeds without one.
		var ledger store.Store
		if !collectNoLedger {
			ledger, err = initStore(ctx)
			if err != nil {
				zap.L().Warn("ledger unavailable, running without it", zap.Error(err))
			} else {
				defer ledger.Close() //nolint:errcheck
				if err := ledger.Migrate(ctx); err != nil {
					zap.L().Warn("ledger migration failed, running without it", zap.Error(err))
					ledger = nil
				}
			}
		}

		daysBack := collectDaysBack
		if daysBack == 0 {
			daysBack = cfg.Data.DaysBack
		}

		var opts []trends.Option
		if cfg.Fetch.UserAgent != "" {
			opts = append(opts, trends.WithUserAgent(cfg.Fetch.UserAgent))
		}
		svc := trends.NewClient(cfg.QueryParams(), opts...)
		policy := cfg.Policy()
		client := collector.NewClient(svc, policy)

		orch := collector.NewOrchestrator(entities, collector.NewAggregator(client),
			initFileStore(), ledger, policy, daysBack)

		run, err := orch.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "run %s: %s (%d/%d entities)\n",
			run.ID, run.Status, run.EntitiesCollected, run.EntitiesTotal)
		return nil
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectEntitiesFile, "entities", "", "entities file (default from config)")
	collectCmd.Flags().IntVar(&collectDaysBack, "days-back", 0, "window length in days (default from config)")
	collectCmd.Flags().BoolVar(&collectNoLedger, "no-ledger", false, "skip run-ledger recording")
	rootCmd.AddCommand(collectCmd)
}
