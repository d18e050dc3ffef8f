package collector

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trendwatch/internal/resilience"
	"github.com/sells-group/trendwatch/pkg/trends"
)

// fakeService scripts InterestOverTime responses per call.
type fakeService struct {
	calls     int
	responses []fakeResponse
}

type fakeResponse struct {
	series trends.Series
	err    error
}

func (f *fakeService) InterestOverTime(ctx context.Context, terms []string, window trends.Window) (trends.Series, error) {
	if err := ctx.Err(); err != nil {
		return trends.Series{}, err
	}
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1 // repeat the last scripted response
	}
	return f.responses[i].series, f.responses[i].err
}

// sleepRecorder captures requested sleep durations without waiting.
type sleepRecorder struct {
	slept []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.slept = append(r.slept, d)
	return nil
}

func testPolicy() Policy {
	return Policy{
		MaxRetries:        5,
		PauseBetweenCalls: 20 * time.Second,
		CooldownThreshold: 3,
		Cooldown:          time.Hour,
		Backoff:           resilience.NewBackoffPolicy(time.Second, 10*time.Second, 0, 5*time.Second, 1),
	}
}

func newTestClient(svc trends.QueryService, policy Policy) (*Client, *sleepRecorder) {
	c := NewClient(svc, policy)
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

func okSeries(terms []string) trends.Series {
	return trends.Series{
		Terms: terms,
		Points: []trends.Point{
			{Date: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), Values: map[string]float64{terms[0]: 42}},
		},
	}
}

func TestFetch_SuccessPausesBetweenCalls(t *testing.T) {
	terms := []string{"acme"}
	svc := &fakeService{responses: []fakeResponse{{series: okSeries(terms)}}}
	c, rec := newTestClient(svc, testPolicy())

	got, err := c.Fetch(context.Background(), terms, trends.Window{})
	require.NoError(t, err)
	assert.Len(t, got.Points, 1)
	assert.Equal(t, 1, svc.calls)
	require.Len(t, rec.slept, 1)
	assert.Equal(t, 20*time.Second, rec.slept[0])
}

func TestFetch_ThrottleThresholdTriggersOneCooldown(t *testing.T) {
	terms := []string{"acme"}
	svc := &fakeService{responses: []fakeResponse{
		{err: trends.ErrThrottled},
		{err: trends.ErrThrottled},
		{err: trends.ErrThrottled},
		{series: okSeries(terms)},
	}}
	c, rec := newTestClient(svc, testPolicy())

	got, err := c.Fetch(context.Background(), terms, trends.Window{})
	require.NoError(t, err)
	assert.Len(t, got.Points, 1)
	assert.Equal(t, 4, svc.calls)

	// Two backoffs, then the circuit-open cooldown, then the
	// post-success pause.
	var cooldowns int
	for _, d := range rec.slept {
		if d == time.Hour {
			cooldowns++
		}
	}
	assert.Equal(t, 1, cooldowns)
	assert.Equal(t, 0, c.ThrottleCount(), "counter resets after cooldown and success")
}

func TestFetch_NotFoundIsTerminal(t *testing.T) {
	svc := &fakeService{responses: []fakeResponse{{err: trends.ErrNotFound}}}
	c, rec := newTestClient(svc, testPolicy())

	_, err := c.Fetch(context.Background(), []string{"ghost"}, trends.Window{})
	require.Error(t, err)
	assert.Equal(t, 1, svc.calls, "not-found is never retried")
	assert.Empty(t, rec.slept)
}

func TestFetch_NetworkExhaustionReturnsEmptySeries(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 3
	svc := &fakeService{responses: []fakeResponse{
		{err: eris.New("Get \"https://example.com\": connection reset by peer")},
	}}
	c, rec := newTestClient(svc, policy)

	got, err := c.Fetch(context.Background(), []string{"acme"}, trends.Window{})
	require.NoError(t, err, "network exhaustion is not terminal")
	assert.True(t, got.Empty())
	assert.Equal(t, []string{"acme"}, got.Terms)
	assert.Equal(t, 3, svc.calls)
	assert.Len(t, rec.slept, 2, "backoff between attempts, none after giving up")
}

func TestFetch_NetworkBackoffCarriesPenalty(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 2
	svc := &fakeService{responses: []fakeResponse{
		{err: eris.New("dial tcp: i/o timeout")},
		{series: okSeries([]string{"acme"})},
	}}
	c, rec := newTestClient(svc, policy)

	_, err := c.Fetch(context.Background(), []string{"acme"}, trends.Window{})
	require.NoError(t, err)
	require.NotEmpty(t, rec.slept)
	// base 1s + 5s network penalty
	assert.Equal(t, 6*time.Second, rec.slept[0])
}

func TestFetch_ServiceErrorExhaustsRetries(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 2
	svc := &fakeService{responses: []fakeResponse{{err: eris.New("malformed response")}}}
	c, _ := newTestClient(svc, policy)

	_, err := c.Fetch(context.Background(), []string{"acme"}, trends.Window{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, svc.calls)
}

func TestFetch_ThrottleExhaustionGetsFinalCooldownRetry(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 2
	policy.CooldownThreshold = 10 // never trip the circuit in-loop
	terms := []string{"acme"}
	svc := &fakeService{responses: []fakeResponse{
		{err: trends.ErrThrottled},
		{err: trends.ErrThrottled},
		{series: okSeries(terms)},
	}}
	c, rec := newTestClient(svc, policy)

	got, err := c.Fetch(context.Background(), terms, trends.Window{})
	require.NoError(t, err)
	assert.Len(t, got.Points, 1)
	assert.Equal(t, 3, svc.calls)

	var cooldowns int
	for _, d := range rec.slept {
		if d == time.Hour {
			cooldowns++
		}
	}
	assert.Equal(t, 1, cooldowns, "one final cooldown before the last attempt")
}

func TestFetch_ThrottleFinalRetryStillFailing(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 2
	policy.CooldownThreshold = 10
	svc := &fakeService{responses: []fakeResponse{{err: trends.ErrThrottled}}}
	c, _ := newTestClient(svc, policy)

	_, err := c.Fetch(context.Background(), []string{"acme"}, trends.Window{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted retries")
	assert.Equal(t, 3, svc.calls, "two regular attempts plus the final one")
}

func TestFetch_CancelledDuringBackoff(t *testing.T) {
	svc := &fakeService{responses: []fakeResponse{{err: eris.New("malformed response")}}}
	c := NewClient(svc, testPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.Fetch(ctx, []string{"acme"}, trends.Window{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Equal(t, 1, svc.calls)
}
