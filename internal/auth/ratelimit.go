package auth

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// RateLimitConfig configures the token buckets.
type RateLimitConfig struct {
	// PerMinute is the sustained rate; 0 disables limiting.
	PerMinute int
	// Burst is the bucket size (default PerMinute).
	Burst int
	// CleanupInterval is how often idle buckets are dropped (default 5m).
	CleanupInterval time.Duration
}

// RateLimiter implements token bucket rate limiting per key.
type RateLimiter struct {
	config  RateLimitConfig
	buckets map[string]*tokenBucket
	mu      sync.Mutex
	logger  *slog.Logger
	now     func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a limiter. A nil logger disables cleanup logging.
func NewRateLimiter(config RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if config.Burst <= 0 {
		config.Burst = config.PerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*tokenBucket),
		logger:  logger,
		now:     time.Now,
	}
}

// Enabled reports whether requests are limited at all.
func (r *RateLimiter) Enabled() bool {
	return r != nil && r.config.PerMinute > 0
}

// Allow consumes a token for key. When refused it returns the whole
// seconds until the next token.
func (r *RateLimiter) Allow(key string) (bool, int) {
	if !r.Enabled() {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	perSecond := float64(r.config.PerMinute) / 60
	bucket, ok := r.buckets[key]
	if !ok {
		bucket = &tokenBucket{tokens: float64(r.config.Burst), lastRefill: now}
		r.buckets[key] = bucket
	}

	bucket.tokens += now.Sub(bucket.lastRefill).Seconds() * perSecond
	bucket.lastRefill = now
	if bucket.tokens > float64(r.config.Burst) {
		bucket.tokens = float64(r.config.Burst)
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true, 0
	}
	return false, int(math.Ceil((1 - bucket.tokens) / perSecond))
}

// StartCleanup drops idle buckets until ctx is done.
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	if !r.Enabled() {
		return
	}
	go func() {
		ticker := time.NewTicker(r.config.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

// cleanup removes buckets unused for two cleanup intervals.
func (r *RateLimiter) cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-2 * r.config.CleanupInterval)
	removed := 0
	for key, b := range r.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(r.buckets, key)
			removed++
		}
	}
	if removed > 0 && r.logger != nil {
		r.logger.Debug("Rate limit cleanup", "removed_buckets", removed, "remaining", len(r.buckets))
	}
	return removed
}
