package otp

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter is the interface for request-throttling implementations used
// in front of verification requests.
type RateLimiter interface {
	// Allow checks if the request should be allowed based on the key and
	// rate limit. remaining indicates how many requests are left in the
	// current window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, err error)

	// Reset clears the rate limit counter for the given key.
	Reset(ctx context.Context, key string) error
}

// RateLimitError is returned when a verification request exceeds the
// per-phone ceiling for the trailing window.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("otp: rate limit exceeded, retry after %v", e.RetryAfter)
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	_, ok := err.(*RateLimitError)
	return ok
}

// ---- Sliding Window Rate Limiter (Memory) ----

type slidingWindowEntry struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// MemoryRateLimiter implements rate limiting using an in-memory sliding
// window. For production deployments with multiple instances, use the
// Redis-based implementation.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*slidingWindowEntry
}

// NewMemoryRateLimiter creates a new memory-based rate limiter.
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		entries: make(map[string]*slidingWindowEntry),
	}
}

func (r *MemoryRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	r.mu.Lock()
	entry, exists := r.entries[key]
	if !exists {
		entry = &slidingWindowEntry{}
		r.entries[key] = entry
	}
	r.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)

	valid := make([]time.Time, 0, len(entry.timestamps))
	for _, ts := range entry.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= limit {
		return false, 0, nil
	}

	entry.timestamps = append(entry.timestamps, now)
	return true, limit - len(entry.timestamps), nil
}

func (r *MemoryRateLimiter) Reset(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}
