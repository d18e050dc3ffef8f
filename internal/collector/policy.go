// Package collector drives the per-entity collection loop: the
// rate-limited fetch client, the alias aggregator and the orchestrator.
package collector

import (
	"context"
	"time"

	"github.com/sells-group/trendwatch/internal/resilience"
)

// Policy is the single configurable retry/pacing policy. There is one
// policy with knobs, not separate conservative/aggressive code paths.
type Policy struct {
	// MaxRetries is the number of attempts per call, including the
	// first. Default: 5.
	MaxRetries int

	// PauseBetweenCalls is the fixed pause applied after every call,
	// success included, to stay under the global rate budget.
	// Default: 20s.
	PauseBetweenCalls time.Duration

	// PauseBetweenEntities spreads load between entities. Larger than
	// the inter-call pause. Default: 60s.
	PauseBetweenEntities time.Duration

	// InitialDelay lets transient startup rate-limit pressure clear
	// before the first call. Default: 30s.
	InitialDelay time.Duration

	// CooldownThreshold is the consecutive-throttle count that signals
	// a suspected origin-level block. Default: 3.
	CooldownThreshold int

	// Cooldown is the long forced pause served when the threshold is
	// reached, and before the final give-up retry. Default: 1h.
	Cooldown time.Duration

	// Backoff computes per-retry waits. Required.
	Backoff *resilience.BackoffPolicy
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 5
	}
	if p.PauseBetweenCalls <= 0 {
		p.PauseBetweenCalls = 20 * time.Second
	}
	if p.PauseBetweenEntities <= 0 {
		p.PauseBetweenEntities = 60 * time.Second
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.CooldownThreshold <= 0 {
		p.CooldownThreshold = 3
	}
	if p.Cooldown <= 0 {
		p.Cooldown = time.Hour
	}
	if p.Backoff == nil {
		p.Backoff = resilience.NewBackoffPolicy(0, 0, 0, 0, uint64(time.Now().UnixNano()))
	}
	return p
}

// sleepCtx waits for d or until ctx is cancelled. All collector pauses
// go through here so operator interrupts are observable between sleep
// points.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
