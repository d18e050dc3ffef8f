package collector

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trendwatch/internal/dataset"
	"github.com/sells-group/trendwatch/internal/model"
	"github.com/sells-group/trendwatch/internal/store"
	"github.com/sells-group/trendwatch/pkg/trends"
)

// Orchestrator drives a full collection run: pacing, per-entity
// collection, window assembly, merge with the historical store and
// persistence, with a best-effort partial save on any abort so fetched
// data is never silently discarded.
type Orchestrator struct {
	entities []model.Entity
	agg      *Aggregator
	files    *dataset.FileStore
	ledger   store.Store // optional; ledger failures never fail a run
	policy   Policy
	daysBack int

	// injectable for tests
	sleep   func(ctx context.Context, d time.Duration) error
	nowFunc func() time.Time
}

// NewOrchestrator assembles a run driver. ledger may be nil.
func NewOrchestrator(entities []model.Entity, agg *Aggregator, files *dataset.FileStore, ledger store.Store, policy Policy, daysBack int) *Orchestrator {
	if daysBack <= 0 {
		daysBack = 90
	}
	return &Orchestrator{
		entities: entities,
		agg:      agg,
		files:    files,
		ledger:   ledger,
		policy:   policy.withDefaults(),
		daysBack: daysBack,
		sleep:    sleepCtx,
		nowFunc:  time.Now,
	}
}

// Run executes one collection cycle and returns the ledger record.
func (o *Orchestrator) Run(ctx context.Context) (*model.Run, error) {
	window := trends.LastNDays(o.daysBack, o.nowFunc())
	run := &model.Run{
		ID:            uuid.NewString(),
		Status:        model.RunStatusRunning,
		WindowStart:   window.Start,
		WindowEnd:     window.End,
		EntitiesTotal: len(o.entities),
		StartedAt:     o.nowFunc(),
	}
	o.ledgerCreate(ctx, run)

	zap.L().Info("collection run starting",
		zap.String("run_id", run.ID),
		zap.Int("entities", len(o.entities)),
		zap.String("timeframe", window.Timeframe()),
		zap.Duration("initial_delay", o.policy.InitialDelay),
	)

	// Initial pause lets startup rate-limit pressure clear.
	if err := o.sleep(ctx, o.policy.InitialDelay); err != nil {
		return o.abort(ctx, run, nil, eris.Wrap(err, "collector: cancelled before first entity"))
	}

	frames := make(map[string]dataset.Series)
	for i, entity := range o.entities {
		if i > 0 {
			zap.L().Info("pausing before next entity",
				zap.String("entity", entity.Name),
				zap.Duration("pause", o.policy.PauseBetweenEntities),
			)
			if err := o.sleep(ctx, o.policy.PauseBetweenEntities); err != nil {
				return o.abort(ctx, run, frames, eris.Wrap(err, "collector: cancelled between entities"))
			}
		}

		series, stats, err := o.agg.Collect(ctx, entity, window)
		if err != nil {
			return o.abort(ctx, run, frames, err)
		}
		o.ledgerOutcome(ctx, model.EntityOutcome{
			RunID:         run.ID,
			Entity:        entity.Name,
			Batches:       stats.Batches,
			BatchesFailed: stats.Failed,
			Days:          len(series),
			RecordedAt:    o.nowFunc(),
		})
		if len(series) == 0 {
			continue
		}
		frames[entity.Name] = series
		run.EntitiesCollected++
	}

	names := model.EntityNames(o.entities)
	windowDS := buildWindow(frames, names)
	if windowDS.Empty() {
		zap.L().Warn("no new data collected, nothing to merge", zap.String("run_id", run.ID))
		o.finish(ctx, run, model.RunStatusComplete, "")
		return run, nil
	}

	historical, exists, err := o.files.LoadHistorical()
	if err != nil {
		// A corrupt historical file must not cost us the fetched data:
		// continue with the window only; the backup taken before the
		// write preserves the corrupt original for manual recovery.
		zap.L().Error("historical dataset unreadable, continuing with window only", zap.Error(err))
		historical = dataset.Dataset{}
	} else if !exists {
		zap.L().Info("no historical dataset, creating a new one")
	}

	merged := dataset.Merge(historical, windowDS, names)
	if err := o.files.SaveHistorical(merged); err != nil {
		zap.L().Error("persisting merged dataset failed, attempting partial save", zap.Error(err))
		return o.abort(ctx, run, frames, err)
	}

	first, last := merged.DateRange()
	zap.L().Info("collection run complete",
		zap.String("run_id", run.ID),
		zap.Int("entities_collected", run.EntitiesCollected),
		zap.Int("days_total", len(merged.Rows)),
		zap.String("first", first.Format(dataset.DateLayout)),
		zap.String("last", last.Format(dataset.DateLayout)),
	)
	o.finish(ctx, run, model.RunStatusComplete, "")
	return run, nil
}

// abort handles any failure or operator interruption: if at least one
// entity succeeded, the window is saved to the partial file so a human
// or a later promote can recover it.
func (o *Orchestrator) abort(ctx context.Context, run *model.Run, frames map[string]dataset.Series, cause error) (*model.Run, error) {
	status := model.RunStatusFailed
	if len(frames) > 0 {
		windowDS := buildWindow(frames, model.EntityNames(o.entities))
		if err := o.files.SavePartial(windowDS); err != nil {
			zap.L().Error("partial save failed, fetched data lost", zap.Error(err))
		} else {
			status = model.RunStatusPartial
		}
	}
	zap.L().Error("collection run aborted",
		zap.String("run_id", run.ID),
		zap.Int("entities_collected", run.EntitiesCollected),
		zap.String("status", string(status)),
		zap.Error(cause),
	)
	o.finish(ctx, run, status, cause.Error())
	return run, cause
}

func (o *Orchestrator) finish(ctx context.Context, run *model.Run, status model.RunStatus, errMsg string) {
	now := o.nowFunc()
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = &now
	if o.ledger == nil {
		return
	}
	if err := o.ledger.FinishRun(ctx, run.ID, status, run.EntitiesCollected, errMsg); err != nil {
		zap.L().Warn("ledger update failed", zap.Error(err))
	}
}

func (o *Orchestrator) ledgerCreate(ctx context.Context, run *model.Run) {
	if o.ledger == nil {
		return
	}
	if err := o.ledger.CreateRun(ctx, *run); err != nil {
		zap.L().Warn("ledger create failed", zap.Error(err))
	}
}

func (o *Orchestrator) ledgerOutcome(ctx context.Context, outcome model.EntityOutcome) {
	if o.ledger == nil {
		return
	}
	if err := o.ledger.RecordOutcome(ctx, outcome); err != nil {
		zap.L().Warn("ledger outcome failed", zap.Error(err))
	}
}

// buildWindow assembles the per-run window table from entity series.
// Dates inside the window missing for an entity that produced data are
// filled with 0; entities with no data at all keep the explicit no-data
// marker so the schema still carries every configured entity.
func buildWindow(frames map[string]dataset.Series, entities []string) dataset.Dataset {
	dates := make(map[time.Time]struct{})
	for _, series := range frames {
		for date := range series {
			dates[date] = struct{}{}
		}
	}

	ordered := make([]time.Time, 0, len(dates))
	for date := range dates {
		ordered = append(ordered, date)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	ds := dataset.Dataset{}
	for _, name := range entities {
		if _, ok := frames[name]; ok {
			ds.Columns = append(ds.Columns, name)
		}
	}
	for _, date := range ordered {
		row := dataset.Row{Date: date, Values: make(map[string]float64, len(ds.Columns))}
		for _, name := range ds.Columns {
			if v, ok := frames[name][date]; ok {
				row.Values[name] = v
			} else {
				row.Values[name] = 0
			}
		}
		ds.Rows = append(ds.Rows, row)
	}

	ds.EnsureColumns(entities)
	ds.Reindex(entities)
	return ds
}
