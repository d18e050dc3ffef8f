// Package resilience provides the backoff policy, failure classification
// and throttle tracking used around query-service calls.
package resilience

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// BackoffPolicy computes the wait before a retry. Pure given a seeded
// jitter source: no I/O, no clock reads.
type BackoffPolicy struct {
	// Base is the delay before the first retry. Default: 30s.
	Base time.Duration

	// Cap bounds the exponential schedule. Default: 10m.
	Cap time.Duration

	// JitterMax bounds the uniform jitter added to every delay.
	// Default: 10s.
	JitterMax time.Duration

	// NetworkPenalty is a fixed extra wait applied to network failures
	// on top of the exponential schedule. Default: 60s.
	NetworkPenalty time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoffPolicy creates a policy with the given knobs; zero values
// take defaults. seed fixes the jitter source so tests are
// deterministic.
func NewBackoffPolicy(base, cap, jitterMax, networkPenalty time.Duration, seed uint64) *BackoffPolicy {
	p := &BackoffPolicy{
		Base:           base,
		Cap:            cap,
		JitterMax:      jitterMax,
		NetworkPenalty: networkPenalty,
		rng:            rand.New(rand.NewPCG(seed, seed)),
	}
	if p.Base <= 0 {
		p.Base = 30 * time.Second
	}
	if p.Cap <= 0 {
		p.Cap = 10 * time.Minute
	}
	if p.JitterMax < 0 {
		p.JitterMax = 0
	}
	if p.NetworkPenalty < 0 {
		p.NetworkPenalty = 0
	}
	return p
}

// Delay returns the wait before retry number attempt (attempt >= 1 is
// the first retry). Exponential from Base, capped at Cap, plus uniform
// jitter in [0, JitterMax). Network failures add NetworkPenalty on top.
// Never returns zero for attempt >= 1.
func (p *BackoffPolicy) Delay(attempt int, class FailureClass) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.Base) * math.Pow(2, float64(attempt-1))
	if d > float64(p.Cap) {
		d = float64(p.Cap)
	}
	delay := time.Duration(d)

	if p.JitterMax > 0 {
		p.mu.Lock()
		delay += time.Duration(p.rng.Int64N(int64(p.JitterMax)))
		p.mu.Unlock()
	}

	if class == FailureNetwork {
		delay += p.NetworkPenalty
	}

	if delay <= 0 {
		delay = time.Millisecond
	}
	return delay
}
