// Package ratelimit tracks Discord's per-route rate limit headers and paces
// outgoing requests. It never retries or sleeps out a reset window: while a
// route is exhausted Wait fails with *ExhaustedError and the caller decides
// when to try again.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Bucket represents a rate limit bucket for a specific Discord API route
type Bucket struct {
	Remaining int           // Requests remaining in current window
	Limit     int           // Total requests allowed per window
	ResetAt   time.Time     // When the rate limit resets
	limiter   *rate.Limiter // Token bucket rate limiter
	mu        sync.Mutex
}

// ExhaustedError is returned by Wait while a route has no requests left in
// its current window
type ExhaustedError struct {
	Route      string
	RetryAfter time.Duration
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("rate limit exhausted for %s, retry after %s", e.Route, e.RetryAfter)
}

// RateLimiter manages rate limits for Discord API routes
type RateLimiter struct {
	buckets map[string]*Bucket // route -> bucket
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*Bucket),
		logger:  logger,
	}
}

// getBucket retrieves or creates a bucket for a route
func (rl *RateLimiter) getBucket(route string) *Bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if bucket, exists := rl.buckets[route]; exists {
		return bucket
	}

	// Default: 5 requests per second until Discord tells us otherwise
	bucket := &Bucket{
		Remaining: 5,
		Limit:     5,
		ResetAt:   time.Now().Add(1 * time.Second),
		limiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}

	rl.buckets[route] = bucket
	return bucket
}

// Wait paces a request on route. It returns *ExhaustedError at once when
// the route's window is used up instead of waiting for the reset.
func (rl *RateLimiter) Wait(ctx context.Context, route string) error {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	exhausted := bucket.Remaining <= 0 && time.Now().Before(bucket.ResetAt)
	retryAfter := time.Until(bucket.ResetAt)
	limiter := bucket.limiter
	bucket.mu.Unlock()

	if exhausted {
		rl.logger.Warn("rate limit exhausted, rejecting request",
			zap.String("route", route),
			zap.Duration("retry_after", retryAfter),
		)
		return &ExhaustedError{Route: route, RetryAfter: retryAfter}
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	return nil
}

// UpdateFromHeaders updates a route's bucket from Discord API response headers
func (rl *RateLimiter) UpdateFromHeaders(route string, headers http.Header) {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	if val, err := strconv.Atoi(headers.Get("X-RateLimit-Remaining")); err == nil {
		bucket.Remaining = val
	}

	if val, err := strconv.Atoi(headers.Get("X-RateLimit-Limit")); err == nil {
		bucket.Limit = val
	}

	// Reset-After is relative and immune to clock skew, so it wins over Reset
	if after, ok := parseSeconds(headers.Get("X-RateLimit-Reset-After")); ok {
		bucket.ResetAt = time.Now().Add(after)
	} else if resetAt, ok := parseResetTime(headers.Get("X-RateLimit-Reset")); ok {
		bucket.ResetAt = resetAt
	}

	if bucket.Limit > 0 {
		resetDuration := time.Until(bucket.ResetAt)
		if resetDuration > 0 {
			tokensPerSecond := float64(bucket.Limit) / resetDuration.Seconds()
			bucket.limiter = rate.NewLimiter(rate.Limit(tokensPerSecond), bucket.Limit)
		}
	}

	rl.logger.Debug("updated rate limit from headers",
		zap.String("route", route),
		zap.Int("remaining", bucket.Remaining),
		zap.Int("limit", bucket.Limit),
		zap.Time("reset_at", bucket.ResetAt),
	)
}

// HandleRateLimitResponse marks route exhausted after a 429 and returns how
// long Discord asked callers to back off
func (rl *RateLimiter) HandleRateLimitResponse(route string, headers http.Header) time.Duration {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	retryAfter, ok := parseSeconds(headers.Get("Retry-After"))
	if !ok {
		if resetAt, ok := parseResetTime(headers.Get("X-RateLimit-Reset")); ok {
			retryAfter = time.Until(resetAt)
		}
	}

	// Default to 1 second if no timing information
	if retryAfter <= 0 {
		retryAfter = 1 * time.Second
	}

	bucket.Remaining = 0
	bucket.ResetAt = time.Now().Add(retryAfter)

	rl.logger.Warn("rate limited by Discord API",
		zap.String("route", route),
		zap.Duration("retry_after", retryAfter),
		zap.Bool("global", headers.Get("X-RateLimit-Global") == "true"),
	)

	return retryAfter
}

// GetStatus returns the current rate limit status for a route
func (rl *RateLimiter) GetStatus(route string) (remaining int, limit int, resetAt time.Time) {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	return bucket.Remaining, bucket.Limit, bucket.ResetAt
}

// Reset clears all rate limit buckets
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.buckets = make(map[string]*Bucket)
	rl.logger.Info("rate limiter reset")
}

// parseSeconds parses a (possibly fractional) number of seconds
func parseSeconds(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds < 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// parseResetTime accepts RFC3339 or a (possibly fractional) Unix timestamp
func parseResetTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	epoch, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, false
	}
	sec, frac := math.Modf(epoch)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))), true
}
