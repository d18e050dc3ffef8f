package resilience

import "sync"

// ThrottleTracker counts consecutive throttled calls across the whole
// process. The count is shared by every batch and entity because the
// service rate-limits per origin, not per query. Any non-throttle
// outcome resets it so unrelated noise never triggers a cooldown.
type ThrottleTracker struct {
	mu          sync.Mutex
	consecutive int
	threshold   int
}

// NewThrottleTracker creates a tracker that reports a suspected block
// once threshold consecutive throttles are seen. threshold <= 0
// defaults to 3.
func NewThrottleTracker(threshold int) *ThrottleTracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &ThrottleTracker{threshold: threshold}
}

// OnThrottled records a throttled call and returns the new consecutive
// count plus whether the block threshold has been reached.
func (t *ThrottleTracker) OnThrottled() (count int, blocked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutive++
	return t.consecutive, t.consecutive >= t.threshold
}

// OnSuccess resets the consecutive count after a successful call.
func (t *ThrottleTracker) OnSuccess() {
	t.reset()
}

// OnNetworkError resets the consecutive count: network failures are a
// distinct class and say nothing about rate limiting.
func (t *ThrottleTracker) OnNetworkError() {
	t.reset()
}

// Reset clears the count, used after serving a cooldown.
func (t *ThrottleTracker) Reset() {
	t.reset()
}

// Count returns the current consecutive-throttle count.
func (t *ThrottleTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutive
}

func (t *ThrottleTracker) reset() {
	t.mu.Lock()
	t.consecutive = 0
	t.mu.Unlock()
}
