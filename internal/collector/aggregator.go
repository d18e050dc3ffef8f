package collector

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trendwatch/internal/dataset"
	"github.com/sells-group/trendwatch/internal/model"
	"github.com/sells-group/trendwatch/pkg/trends"
)

// BatchStats summarizes batch outcomes for one entity.
type BatchStats struct {
	Batches int
	Failed  int
}

// Aggregator turns one entity's alias batches into a single daily
// series.
type Aggregator struct {
	client *Client
}

// NewAggregator creates an aggregator over the given fetch client.
func NewAggregator(client *Client) *Aggregator {
	return &Aggregator{client: client}
}

// Collect fetches every alias batch for the entity sequentially (the
// rate budget is global, parallel calls only accelerate throttling) and
// combines surviving batches by date using the element-wise maximum:
// "did any alias spike on this day", never a sum of near-duplicates.
// Failed or empty batches are dropped with a warning. Zero surviving
// batches yield an empty series and a nil error so the caller skips the
// entity without failing the run. The returned error is non-nil only
// for cancellation.
func (a *Aggregator) Collect(ctx context.Context, entity model.Entity, window trends.Window) (dataset.Series, BatchStats, error) {
	batches := entity.Batches()
	stats := BatchStats{Batches: len(batches)}
	series := make(dataset.Series)

	for i, batch := range batches {
		if ctx.Err() != nil {
			return nil, stats, eris.Wrapf(ctx.Err(), "collector: entity %s cancelled", entity.Name)
		}
		zap.L().Info("fetching alias batch",
			zap.String("entity", entity.Name),
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Strings("aliases", batch),
		)

		fetched, err := a.client.Fetch(ctx, batch, window)
		if err != nil {
			if ctx.Err() != nil {
				return nil, stats, eris.Wrapf(ctx.Err(), "collector: entity %s cancelled", entity.Name)
			}
			stats.Failed++
			zap.L().Warn("batch dropped",
				zap.String("entity", entity.Name),
				zap.Strings("aliases", batch),
				zap.Error(err),
			)
			continue
		}
		if fetched.Empty() {
			stats.Failed++
			zap.L().Warn("batch returned no rows",
				zap.String("entity", entity.Name),
				zap.Strings("aliases", batch),
			)
			continue
		}

		for _, point := range fetched.Points {
			for _, v := range point.Values {
				if cur, ok := series[point.Date]; !ok || v > cur {
					series[point.Date] = v
				}
			}
		}
	}

	if len(series) == 0 {
		zap.L().Warn("no data collected for entity", zap.String("entity", entity.Name))
	} else {
		zap.L().Info("entity collected",
			zap.String("entity", entity.Name),
			zap.Int("days", len(series)),
			zap.Int("batches_failed", stats.Failed),
		)
	}
	return series, stats, nil
}
