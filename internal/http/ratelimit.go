package http

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// Recap generations a client may request per minute, and its burst.
	defaultRequestsPerMinute = 10

	bucketIdleTTL    = 10 * time.Minute
	bucketSweepEvery = 5 * time.Minute
)

// rateLimiter is a per-client token bucket refilled continuously at limit
// tokens per minute.
type rateLimiter struct {
	limit float64
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	done     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens  float64
	updated time.Time
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		limit:   defaultRequestsPerMinute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *rateLimiter) sweepLoop() {
	ticker := time.NewTicker(bucketSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.done:
			return
		}
	}
}

// sweep forgets clients idle for longer than bucketIdleTTL; their bucket
// would be full again anyway.
func (rl *rateLimiter) sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-bucketIdleTTL)
	removed := 0
	for ip, b := range rl.buckets {
		if b.updated.Before(cutoff) {
			delete(rl.buckets, ip)
			removed++
		}
	}
	return removed
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// allow takes one token from the client's bucket. Denials are counted in
// metrics when it is non-nil.
func (rl *rateLimiter) allow(clientIP string, metrics *securityMetrics) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[clientIP]
	if !ok {
		b = &bucket{tokens: rl.limit, updated: now}
		rl.buckets[clientIP] = b
	} else {
		elapsed := now.Sub(b.updated).Minutes()
		b.tokens = min(rl.limit, b.tokens+elapsed*rl.limit)
		b.updated = now
	}

	if b.tokens < 1 {
		if metrics != nil {
			atomic.AddInt64(&metrics.rateLimitHits, 1)
		}
		return false
	}
	b.tokens--
	return true
}
