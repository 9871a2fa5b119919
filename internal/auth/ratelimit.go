package auth

import (
	"sync"
	"time"
)

// Default rate limiting values.
const (
	// DefaultLimit is the number of requests allowed per window when the
	// configuration leaves it unset.
	DefaultLimit = 10

	// DefaultWindow is the window length when the configuration leaves it
	// unset.
	DefaultWindow = time.Minute

	// DefaultCleanupInterval is the interval at which the background
	// goroutine removes elapsed windows.
	DefaultCleanupInterval = 5 * time.Minute
)

// RateLimiterConfig configures a RateLimiter.
type RateLimiterConfig struct {
	// Limit is the number of requests admitted per window per identity.
	Limit int

	// Window is the length of the fixed window.
	Window time.Duration

	// CleanupInterval is the interval at which stale windows are dropped.
	CleanupInterval time.Duration
}

// window tracks the counter state for a single identity key.
type window struct {
	start time.Time
	count int
}

// RateLimiter admits requests per identity key using a fixed-window counter.
// It is safe for concurrent use; the counter update happens under the lock so
// concurrent bursts never undercount.
//
// The limiter runs a background goroutine that drops elapsed windows. Call
// Close to stop it.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	length  time.Duration
	now     func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	length := cfg.Window
	if length <= 0 {
		length = DefaultWindow
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	rl := &RateLimiter{
		windows:  make(map[string]*window),
		limit:    limit,
		length:   length,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	rl.wg.Add(1)
	go rl.cleanupLoop(cleanupInterval)

	return rl
}

// Allow records a request for the identity key and reports whether it is
// admitted. When denied, retryAfter is the time until the current window
// elapses. Denial is a normal outcome, not a fault.
func (rl *RateLimiter) Allow(key string) (allowed bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	w, exists := rl.windows[key]
	if !exists || now.Sub(w.start) >= rl.length {
		// Lazily created on first request, reset once the window elapses.
		w = &window{start: now}
		rl.windows[key] = w
	}

	if w.count < rl.limit {
		w.count++
		return true, 0
	}

	return false, w.start.Add(rl.length).Sub(now)
}

// Size returns the number of tracked windows. Useful for tests and
// monitoring.
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Cleanup drops windows that have elapsed. Called periodically by the
// background goroutine; exported so tests can force it.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if now.Sub(w.start) >= rl.length {
			delete(rl.windows, key)
		}
	}
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	defer rl.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// Close stops the background cleanup goroutine. It blocks until the
// goroutine has stopped.
func (rl *RateLimiter) Close() {
	close(rl.stopChan)
	rl.wg.Wait()
}
