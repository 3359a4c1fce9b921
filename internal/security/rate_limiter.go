package security

import (
	"sync"
	"time"
)

// RateLimiter implements a fixed-window token bucket per client
type RateLimiter struct {
	buckets map[string]*bucket
	mutex   sync.RWMutex

	maxRequests int
	window      time.Duration
	now         func() time.Time
}

// bucket represents a token bucket for a specific client
type bucket struct {
	tokens     int
	lastRefill time.Time
	mutex      sync.Mutex
}

// NewRateLimiter creates a rate limiter allowing maxRequests per window
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 120
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		buckets:     make(map[string]*bucket),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Allow checks if a request from the given client should be allowed
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mutex.RLock()
	b, exists := rl.buckets[clientID]
	rl.mutex.RUnlock()

	if !exists {
		rl.mutex.Lock()
		if b, exists = rl.buckets[clientID]; !exists {
			b = &bucket{tokens: rl.maxRequests, lastRefill: rl.now()}
			rl.buckets[clientID] = b
		}
		rl.mutex.Unlock()
	}

	return b.consume(rl.now(), rl.window, rl.maxRequests)
}

// consume attempts to consume a token from the bucket
func (b *bucket) consume(now time.Time, window time.Duration, capacity int) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if now.Sub(b.lastRefill) >= window {
		b.tokens = capacity
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Run removes idle buckets every interval until stop is closed
func (rl *RateLimiter) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupOldBuckets()
		case <-stop:
			return
		}
	}
}

// cleanupOldBuckets removes buckets that haven't been refilled for ten windows
func (rl *RateLimiter) cleanupOldBuckets() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := rl.now().Add(-10 * rl.window)
	for clientID, b := range rl.buckets {
		b.mutex.Lock()
		if b.lastRefill.Before(cutoff) {
			delete(rl.buckets, clientID)
		}
		b.mutex.Unlock()
	}
}

// GetStats returns rate limiting statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	return map[string]interface{}{
		"active_clients": len(rl.buckets),
		"max_requests":   rl.maxRequests,
		"window_seconds": int(rl.window.Seconds()),
	}
}
