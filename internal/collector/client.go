package collector

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trendwatch/internal/resilience"
	"github.com/sells-group/trendwatch/pkg/trends"
)

// Client wraps the query service with retries, throttle-aware
// circuit-open cooldowns and pacing. One Client serves the whole run:
// its throttle tracker is process-wide because the service rate-limits
// per origin, not per batch.
type Client struct {
	svc      trends.QueryService
	policy   Policy
	throttle *resilience.ThrottleTracker

	// sleep allows test injection; defaults to sleepCtx.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a fetch client around svc.
func NewClient(svc trends.QueryService, policy Policy) *Client {
	policy = policy.withDefaults()
	return &Client{
		svc:      svc,
		policy:   policy,
		throttle: resilience.NewThrottleTracker(policy.CooldownThreshold),
		sleep:    sleepCtx,
	}
}

// classify buckets a query-service error for retry decisions.
func classify(err error) resilience.FailureClass {
	switch {
	case errors.Is(err, trends.ErrThrottled):
		return resilience.FailureThrottled
	case errors.Is(err, trends.ErrNotFound):
		return resilience.FailureNotFound
	case resilience.IsNetwork(err):
		return resilience.FailureNetwork
	default:
		return resilience.FailureService
	}
}

// Fetch retrieves the series for one alias batch, retrying per policy.
// Outcomes:
//   - success: throttle counter reset, inter-call pause served, series
//     returned;
//   - throttling past the threshold: one long cooldown, counter reset,
//     attempts resume; exhausted retries get a final cooldown-then-retry
//     before a terminal error ("this batch yielded no data");
//   - network failures: bounded retries with a fixed penalty, then an
//     empty series with nil error so the caller continues;
//   - not-found/forbidden: terminal immediately;
//   - anything else: bounded retries, then a terminal error.
func (c *Client) Fetch(ctx context.Context, terms []string, window trends.Window) (trends.Series, error) {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxRetries; attempt++ {
		series, err := c.svc.InterestOverTime(ctx, terms, window)
		if err == nil {
			return c.onSuccess(ctx, series)
		}
		if ctx.Err() != nil {
			return trends.Series{}, eris.Wrap(ctx.Err(), "collector: fetch cancelled")
		}
		lastErr = err

		class := classify(err)
		switch class {
		case resilience.FailureNotFound:
			zap.L().Warn("batch not found or forbidden, not retrying",
				zap.Strings("batch", terms),
				zap.Int("attempt", attempt),
			)
			return trends.Series{}, eris.Wrapf(err, "collector: batch %v", terms)

		case resilience.FailureThrottled:
			count, blocked := c.throttle.OnThrottled()
			if blocked {
				if err := c.coolDown(ctx, terms, count); err != nil {
					return trends.Series{}, err
				}
				continue
			}
			if attempt == c.policy.MaxRetries {
				continue // exhausted; final cooldown-then-retry below
			}
			if err := c.backoffSleep(ctx, terms, attempt, class); err != nil {
				return trends.Series{}, err
			}

		case resilience.FailureNetwork:
			c.throttle.OnNetworkError()
			if attempt == c.policy.MaxRetries {
				zap.L().Warn("network retries exhausted, returning empty series",
					zap.Strings("batch", terms),
					zap.Int("attempts", attempt),
					zap.Error(err),
				)
				return trends.Series{Terms: terms}, nil
			}
			if err := c.backoffSleep(ctx, terms, attempt, class); err != nil {
				return trends.Series{}, err
			}

		default: // FailureService
			c.throttle.Reset()
			if attempt == c.policy.MaxRetries {
				zap.L().Error("service retries exhausted",
					zap.Strings("batch", terms),
					zap.Int("attempts", attempt),
					zap.Error(err),
				)
				return trends.Series{}, eris.Wrapf(err, "collector: batch %v after %d attempts", terms, attempt)
			}
			if err := c.backoffSleep(ctx, terms, attempt, class); err != nil {
				return trends.Series{}, err
			}
		}
	}

	// Throttling exhausted every regular attempt. One last cooldown and
	// retry before declaring the batch dry.
	zap.L().Warn("throttle retries exhausted, final cooldown before last attempt",
		zap.Strings("batch", terms),
		zap.Duration("cooldown", c.policy.Cooldown),
	)
	if err := c.sleep(ctx, c.policy.Cooldown); err != nil {
		return trends.Series{}, eris.Wrap(err, "collector: cancelled during final cooldown")
	}
	c.throttle.Reset()

	series, err := c.svc.InterestOverTime(ctx, terms, window)
	if err == nil {
		return c.onSuccess(ctx, series)
	}
	zap.L().Error("final attempt failed, batch yields no data",
		zap.Strings("batch", terms),
		zap.String("class", classify(err).String()),
		zap.Error(err),
	)
	if lastErr == nil {
		lastErr = err
	}
	return trends.Series{}, eris.Wrapf(lastErr, "collector: batch %v exhausted retries", terms)
}

func (c *Client) onSuccess(ctx context.Context, series trends.Series) (trends.Series, error) {
	c.throttle.OnSuccess()
	// Fixed inter-call pause even on success; a cancellation here does
	// not discard data already fetched.
	_ = c.sleep(ctx, c.policy.PauseBetweenCalls)
	return series, nil
}

func (c *Client) coolDown(ctx context.Context, terms []string, count int) error {
	zap.L().Warn("consecutive throttling threshold reached, circuit open",
		zap.Strings("batch", terms),
		zap.Int("consecutive_throttles", count),
		zap.Duration("cooldown", c.policy.Cooldown),
	)
	if err := c.sleep(ctx, c.policy.Cooldown); err != nil {
		return eris.Wrap(err, "collector: cancelled during cooldown")
	}
	c.throttle.Reset()
	zap.L().Info("cooldown complete, resuming", zap.Strings("batch", terms))
	return nil
}

func (c *Client) backoffSleep(ctx context.Context, terms []string, attempt int, class resilience.FailureClass) error {
	delay := c.policy.Backoff.Delay(attempt, class)
	zap.L().Warn("retrying batch",
		zap.Strings("batch", terms),
		zap.Int("attempt", attempt),
		zap.String("class", class.String()),
		zap.Duration("delay", delay),
	)
	if err := c.sleep(ctx, delay); err != nil {
		return eris.Wrap(err, "collector: cancelled during backoff")
	}
	return nil
}

// ThrottleCount exposes the consecutive-throttle counter for
// observability.
func (c *Client) ThrottleCount() int {
	return c.throttle.Count()
}
