// Package ratelimiter throttles login attempts per client address.
//
// Each key (normally a client IP) gets its own token bucket, so a
// brute-force run from one address cannot consume another caller's budget.
// Buckets are held in memory and evicted oldest-first once the table grows
// past its cap; an evicted bucket simply refills, which errs on the side of
// letting a legitimate caller through.
package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxBuckets = 4096

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerKey is a keyed token-bucket limiter.
type PerKey struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewPerKey builds a limiter allowing perSecond sustained attempts per key
// with the given burst.
func NewPerKey(perSecond float64, burst int) *PerKey {
	return &PerKey{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token for the key, reporting whether the attempt is
// within the rate.
func (l *PerKey) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxBuckets {
			l.evictOldestLocked()
		}
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

func (l *PerKey) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, b := range l.buckets {
		if oldestKey == "" || b.lastSeen.Before(oldest) {
			oldestKey = key
			oldest = b.lastSeen
		}
	}
	if oldestKey != "" {
		delete(l.buckets, oldestKey)
	}
}
