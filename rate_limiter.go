package tautan

import (
	"sync"
	"time"
)

// SlidingWindowLimiter admits at most limit requests within any trailing window.
type SlidingWindowLimiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	timestamps []time.Time
	now        func() time.Time
}

// NewSlidingWindowLimiter creates a limiter allowing limit requests per window.
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		limit:      limit,
		window:     window,
		timestamps: make([]time.Time, 0, max(limit, 0)),
		now:        time.Now,
	}
}

// CanMakeRequest reports whether a request is admitted and records it if so.
func (rl *SlidingWindowLimiter) CanMakeRequest() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.prune(now)

	if len(rl.timestamps) < rl.limit {
		rl.timestamps = append(rl.timestamps, now)
		return true
	}
	return false
}

// RemainingRequests reports how many requests the current window still admits.
func (rl *SlidingWindowLimiter) RemainingRequests() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.prune(rl.now())
	remaining := rl.limit - len(rl.timestamps)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Limit returns the configured ceiling.
func (rl *SlidingWindowLimiter) Limit() int {
	return rl.limit
}

// Window returns the configured window size.
func (rl *SlidingWindowLimiter) Window() time.Duration {
	return rl.window
}

// prune drops timestamps older than now - window. Caller holds mu.
func (rl *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(rl.timestamps) && rl.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		rl.timestamps = append(rl.timestamps[:0], rl.timestamps[i:]...)
	}
}
