// Package security provides the cross-cutting security features of the
// service: per-client rate limiting, client IP extraction, security response
// headers, request IDs, and audit logging.
package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterEntry tracks one client's limiter and its last access time.
type limiterEntry struct {
	client     string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter caps requests per client within a sliding window using a token
// bucket sized to the window, with LRU eviction to bound memory.
//
// A window of 15 minutes with a limit of 100 yields a bucket of 100 tokens
// refilling at one token per 9 seconds: a client can spend its full quota in
// a burst, then is throttled to the window's average rate.
type RateLimiter struct {
	limiters   map[string]*list.Element // client -> list element
	lruList    *list.List               // LRU list of *limiterEntry
	mu         sync.Mutex
	limit      int
	window     time.Duration
	maxEntries int
	logger     *slog.Logger

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	totalEvictions int64
}

// defaultMaxEntries bounds the number of tracked clients before LRU eviction.
const defaultMaxEntries = 10000

// NewRateLimiter creates a rate limiter allowing limit requests per client
// per window, with automatic cleanup of idle clients and LRU eviction.
func NewRateLimiter(limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	rl := &RateLimiter{
		limiters:        make(map[string]*list.Element),
		lruList:         list.New(),
		limit:           limit,
		window:          window,
		maxEntries:      defaultMaxEntries,
		logger:          logger,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether a request from the given client is within its quota.
func (rl *RateLimiter) Allow(client string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, exists := rl.limiters[client]; exists {
		rl.lruList.MoveToFront(elem)
		entry := elem.Value.(*limiterEntry)
		entry.lastAccess = now
		return entry.limiter.Allow()
	}

	if len(rl.limiters) >= rl.maxEntries {
		rl.evictLRU()
	}

	entry := &limiterEntry{
		client:     client,
		limiter:    rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.limit)), rl.limit),
		lastAccess: now,
	}
	elem := rl.lruList.PushFront(entry)
	rl.limiters[client] = elem

	return entry.limiter.Allow()
}

// evictLRU removes the least recently used entry. Caller must hold mu.
func (rl *RateLimiter) evictLRU() {
	elem := rl.lruList.Back()
	if elem == nil {
		return
	}

	entry := elem.Value.(*limiterEntry)
	delete(rl.limiters, entry.client)
	rl.lruList.Remove(elem)
	rl.totalEvictions++

	rl.logger.Debug("Rate limiter LRU eviction",
		"client", entry.client,
		"total_evictions", rl.totalEvictions,
		"current_entries", len(rl.limiters))
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// A client idle for two full windows has an empty history.
			rl.Cleanup(2 * rl.window)
		case <-rl.stopCleanup:
			return
		}
	}
}

// Cleanup removes clients that have not been seen for the given duration.
func (rl *RateLimiter) Cleanup(maxIdleTime time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	removed := 0

	var next *list.Element
	for elem := rl.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*limiterEntry)

		if now.Sub(entry.lastAccess) > maxIdleTime {
			delete(rl.limiters, entry.client)
			rl.lruList.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.limiters))
	}
}

// Stop terminates the background cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Stats holds rate limiter counters for monitoring.
type Stats struct {
	CurrentEntries int   // clients currently tracked
	TotalEvictions int64 // LRU evictions since start
}

// GetStats returns current rate limiter statistics.
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return Stats{
		CurrentEntries: len(rl.limiters),
		TotalEvictions: rl.totalEvictions,
	}
}
