package collector

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trendwatch/internal/dataset"
	"github.com/sells-group/trendwatch/internal/model"
	"github.com/sells-group/trendwatch/internal/store"
	"github.com/sells-group/trendwatch/pkg/trends"
)

// memLedger records ledger calls in memory.
type memLedger struct {
	created  []model.Run
	finished []finishCall
	outcomes []model.EntityOutcome
}

type finishCall struct {
	runID     string
	status    model.RunStatus
	collected int
	errMsg    string
}

func (m *memLedger) CreateRun(_ context.Context, run model.Run) error {
	m.created = append(m.created, run)
	return nil
}

func (m *memLedger) FinishRun(_ context.Context, runID string, status model.RunStatus, collected int, errMsg string) error {
	m.finished = append(m.finished, finishCall{runID, status, collected, errMsg})
	return nil
}

func (m *memLedger) RecordOutcome(_ context.Context, o model.EntityOutcome) error {
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *memLedger) GetRun(context.Context, string) (*model.Run, error) { return nil, nil }

func (m *memLedger) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return nil, nil
}

func (m *memLedger) Migrate(context.Context) error { return nil }
func (m *memLedger) Close() error                  { return nil }

func newTestOrchestrator(t *testing.T, entities []model.Entity, svc trends.QueryService) (*Orchestrator, *dataset.FileStore, *memLedger) {
	t.Helper()
	policy := testPolicy()
	policy.MaxRetries = 1

	client, _ := newTestClient(svc, policy)
	files := dataset.NewFileStore(t.TempDir(), "interest_daily")
	ledger := &memLedger{}

	o := NewOrchestrator(entities, NewAggregator(client), files, ledger, policy, 90)
	rec := &sleepRecorder{}
	o.sleep = rec.sleep
	return o, files, ledger
}

func seriesFor(date time.Time, term string, v float64) trends.Series {
	return trends.Series{
		Terms:  []string{term},
		Points: []trends.Point{{Date: date, Values: map[string]float64{term: v}}},
	}
}

func TestRun_CompleteCycle(t *testing.T) {
	d1 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	entities := []model.Entity{
		{Name: "acme", Aliases: []string{"acme"}},
		{Name: "globex", Aliases: []string{"globex"}},
	}
	svc := &fakeService{responses: []fakeResponse{
		{series: trends.Series{Terms: []string{"acme"}, Points: []trends.Point{
			{Date: d1, Values: map[string]float64{"acme": 10}},
			{Date: d2, Values: map[string]float64{"acme": 20}},
		}}},
		{series: seriesFor(d2, "globex", 77)},
	}}
	o, files, ledger := newTestOrchestrator(t, entities, svc)

	run, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 2, run.EntitiesCollected)
	require.NotNil(t, run.FinishedAt)

	got, err := dataset.LoadCSV(files.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, got.Columns)
	require.Len(t, got.Rows, 2)

	// globex produced nothing for d1, zero-filled inside the window.
	v, ok := got.Value(d1, "globex")
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
	v, _ = got.Value(d2, "globex")
	assert.Equal(t, 77.0, v)

	require.Len(t, ledger.created, 1)
	assert.Len(t, ledger.outcomes, 2)
	require.Len(t, ledger.finished, 1)
	assert.Equal(t, model.RunStatusComplete, ledger.finished[0].status)
	assert.Equal(t, 2, ledger.finished[0].collected)
}

func TestRun_MergesWithHistorical(t *testing.T) {
	d1 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	entities := []model.Entity{{Name: "acme", Aliases: []string{"acme"}}}
	svc := &fakeService{responses: []fakeResponse{{series: seriesFor(d2, "acme", 99)}}}
	o, files, _ := newTestOrchestrator(t, entities, svc)

	historical := dataset.Dataset{
		Columns: []string{"acme"},
		Rows: []dataset.Row{
			{Date: d1, Values: map[string]float64{"acme": 5}},
			{Date: d2, Values: map[string]float64{"acme": 6}},
		},
	}
	require.NoError(t, dataset.WriteCSV(historical, files.CSVPath))

	run, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)

	got, err := dataset.LoadCSV(files.CSVPath)
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)

	v, _ := got.Value(d1, "acme")
	assert.Equal(t, 5.0, v, "dates outside the window are untouched")
	v, _ = got.Value(d2, "acme")
	assert.Equal(t, 99.0, v, "window data wins on overlap")
}

func TestRun_NothingCollectedCompletesWithoutWriting(t *testing.T) {
	entities := []model.Entity{{Name: "acme", Aliases: []string{"acme"}}}
	// Network failure exhausts into an empty series, not an error.
	svc := &fakeService{responses: []fakeResponse{{err: eris.New("connection reset by peer")}}}
	o, files, ledger := newTestOrchestrator(t, entities, svc)

	run, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 0, run.EntitiesCollected)

	_, statErr := os.Stat(files.CSVPath)
	assert.True(t, os.IsNotExist(statErr), "no dataset written when nothing was collected")
	require.Len(t, ledger.finished, 1)
	assert.Equal(t, model.RunStatusComplete, ledger.finished[0].status)
}

func TestRun_AbortBetweenEntitiesSavesPartial(t *testing.T) {
	d := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	entities := []model.Entity{
		{Name: "acme", Aliases: []string{"acme"}},
		{Name: "globex", Aliases: []string{"globex"}},
	}
	svc := &fakeService{responses: []fakeResponse{{series: seriesFor(d, "acme", 31)}}}
	o, files, ledger := newTestOrchestrator(t, entities, svc)

	// Cancel at the inter-entity pause, after acme succeeded.
	ctx, cancel := context.WithCancel(context.Background())
	var sleeps int
	o.sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps++
		if sleeps >= 2 { // initial delay, then the inter-entity pause
			cancel()
		}
		return ctx.Err()
	}

	run, err := o.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, model.RunStatusPartial, run.Status)
	assert.Equal(t, 1, run.EntitiesCollected)

	partial, err := files.LoadPartial()
	require.NoError(t, err)
	v, ok := partial.Value(d, "acme")
	require.True(t, ok)
	assert.Equal(t, 31.0, v)
	// The configured schema is carried even for the missing entity.
	assert.True(t, partial.HasColumn("globex"))

	require.Len(t, ledger.finished, 1)
	assert.Equal(t, model.RunStatusPartial, ledger.finished[0].status)
	assert.NotEmpty(t, ledger.finished[0].errMsg)
}

func TestRun_AbortWithNothingCollectedFails(t *testing.T) {
	entities := []model.Entity{{Name: "acme", Aliases: []string{"acme"}}}
	svc := &fakeService{responses: []fakeResponse{{series: seriesFor(time.Now(), "acme", 1)}}}
	o, files, ledger := newTestOrchestrator(t, entities, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := o.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)

	_, statErr := os.Stat(files.PartialPath)
	assert.True(t, os.IsNotExist(statErr), "nothing fetched, nothing to save")
	require.Len(t, ledger.finished, 1)
	assert.Equal(t, model.RunStatusFailed, ledger.finished[0].status)
}

func TestRun_NilLedger(t *testing.T) {
	d := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	svc := &fakeService{responses: []fakeResponse{{series: seriesFor(d, "acme", 3)}}}

	policy := testPolicy()
	policy.MaxRetries = 1
	client, _ := newTestClient(svc, policy)
	files := dataset.NewFileStore(t.TempDir(), "interest_daily")

	o := NewOrchestrator([]model.Entity{{Name: "acme", Aliases: []string{"acme"}}}, NewAggregator(client), files, nil, policy, 90)
	o.sleep = (&sleepRecorder{}).sleep

	run, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
}

func TestBuildWindow_ZeroFillOnlyForEntitiesWithData(t *testing.T) {
	d1 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	frames := map[string]dataset.Series{
		"acme":   {d1: 10, d2: 20},
		"globex": {d2: 30},
	}
	ds := buildWindow(frames, []string{"acme", "globex", "initech"})

	assert.Equal(t, []string{"acme", "globex", "initech"}, ds.Columns)
	require.Len(t, ds.Rows, 2)

	v, ok := ds.Value(d1, "globex")
	require.True(t, ok)
	assert.Equal(t, 0.0, v, "in-window gap for a collected entity is zero")

	_, ok = ds.Value(d1, "initech")
	assert.False(t, ok, "entity with no data keeps the no-data marker")
}
