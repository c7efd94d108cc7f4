package middleware

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tinytulsi/mart-backend/internal/api"
)

// RateLimiter is an in-memory sliding-window limiter keyed by an arbitrary
// string. Timestamps per key are kept in issue order, so pruning the expired
// prefix is a binary search plus one copy.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	stop   chan struct{}
}

// NewRateLimiter allows limit requests per window for each key
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		stop:   make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

// Close stops the background eviction goroutine
func (rl *RateLimiter) Close() {
	close(rl.stop)
}

// prune drops timestamps older than the window start. Caller holds the lock.
func (rl *RateLimiter) prune(key string, now time.Time) []time.Time {
	hits := rl.hits[key]
	cutoff := now.Add(-rl.window)
	first := sort.Search(len(hits), func(i int) bool { return hits[i].After(cutoff) })
	if first > 0 {
		hits = append(hits[:0], hits[first:]...)
		if len(hits) == 0 {
			delete(rl.hits, key)
			return nil
		}
		rl.hits[key] = hits
	}
	return hits
}

// Allow records a hit for the key if it is under the limit
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	hits := rl.prune(key, now)
	if len(hits) >= rl.limit {
		return false
	}
	rl.hits[key] = append(hits, now)
	return true
}

// Remaining reports how many requests the key has left in the window
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	left := rl.limit - len(rl.prune(key, time.Now()))
	if left < 0 {
		return 0
	}
	return left
}

// Reset reports when the key's oldest in-window hit will fall out
func (rl *RateLimiter) Reset(key string) time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	hits := rl.prune(key, time.Now())
	if len(hits) == 0 {
		return time.Now()
	}
	return hits[0].Add(rl.window)
}

func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key := range rl.hits {
				rl.prune(key, now)
			}
			rl.mu.Unlock()
		}
	}
}

// Middleware limits by client IP. It fronts the endpoints that send email
// (OTP issue, forgot-password) so one client cannot flood an inbox.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := api.ClientIP(r)

		if !rl.Allow(key) {
			retryAfter := time.Until(rl.Reset(key)).Seconds()
			if retryAfter < 0 {
				retryAfter = 0
			}
			after := strconv.FormatInt(int64(retryAfter), 10)
			w.Header().Set("Retry-After", after)
			api.WriteError(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS",
				"Rate limit exceeded. Please try again later.",
				map[string][]string{"retry_after": {after}})
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining(key)))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.Reset(key).Unix(), 10))

		next.ServeHTTP(w, r)
	})
}
