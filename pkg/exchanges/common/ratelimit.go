package common

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outgoing requests and tracks the weight the
// exchange reports back in response headers.
type RateLimiter struct {
	limiter *rate.Limiter

	usedWeight    int
	limit         int
	lastReset     time.Time
	resetInterval time.Duration
	mu            sync.RWMutex
}

// NewRateLimiter creates a rate limiter.
// limit: maximum weight allowed per window (1200 for spot).
// resetInterval: the exchange window (1 minute).
func NewRateLimiter(limit int, resetInterval time.Duration) *RateLimiter {
	// Pace requests so a naive loop cannot burn the whole window.
	perSecond := rate.Limit(float64(limit) / resetInterval.Seconds() / 2)
	return &RateLimiter{
		limiter:       rate.NewLimiter(perSecond, 20),
		limit:         limit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
	}
}

// Wait blocks until the next request is allowed to go out.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// UpdateFromHeader updates the used weight from an API response header.
func (rl *RateLimiter) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}

	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		rl.usedWeight = 0
		rl.lastReset = time.Now()
	}

	rl.usedWeight = weight

	percentage := float64(rl.usedWeight) / float64(rl.limit) * 100
	if percentage >= 95 {
		log.Printf("rate limit critical: %d/%d (%.1f%%) - approaching ban threshold", rl.usedWeight, rl.limit, percentage)
	} else if percentage >= 80 {
		log.Printf("rate limit warning: %d/%d (%.1f%%)", rl.usedWeight, rl.limit, percentage)
	}
}

// GetUsage returns current usage information.
func (rl *RateLimiter) GetUsage() (used int, limit int, percentage float64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		return 0, rl.limit, 0
	}

	return rl.usedWeight, rl.limit, float64(rl.usedWeight) / float64(rl.limit) * 100
}

// ShouldDelay returns true if the reported usage is close to the ban line.
func (rl *RateLimiter) ShouldDelay() bool {
	_, _, pct := rl.GetUsage()
	return pct >= 90
}
