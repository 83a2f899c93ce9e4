package ratelimiter

import (
	"sync"
	"time"
)

// TokenBucket implements the RateLimiter interface using the token bucket
// algorithm: tokens refill at a steady rate up to a burst capacity, and each
// request consumes one token.
type TokenBucket struct {
	rate       float64 // tokens added per second
	capacity   float64 // maximum number of stored tokens
	tokens     float64
	lastRefill time.Time
	mutex      sync.Mutex
}

// NewTokenBucket creates a TokenBucket that starts full.
// rate: tokens added per second. capacity: maximum burst size.
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

// Allow refills the bucket based on the elapsed time and consumes one token
// if available.
func (tb *TokenBucket) Allow() bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}
