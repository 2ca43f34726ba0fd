package httpmiddleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// counter holds hit counts for the current fixed window and the one before
// it. index is the window number since the Unix epoch.
type counter struct {
	index int64
	prev  int
	curr  int
}

// Limiter is a sliding window rate limiter keyed by an arbitrary string.
//
// The effective count is the current window's hits plus the previous
// window's hits weighted by how much of the previous window still overlaps
// the sliding interval ending now.
type Limiter struct {
	limit int
	size  time.Duration

	mu   sync.Mutex
	keys map[string]*counter
}

// NewLimiter allows limit hits per key within any interval of length size.
func NewLimiter(limit int, size time.Duration) *Limiter {
	return &Limiter{
		limit: limit,
		size:  size,
		keys:  make(map[string]*counter),
	}
}

// Allow records a hit for key at now if it fits the limit. It returns the
// remaining budget and the end of the current fixed window.
func (l *Limiter) Allow(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := now.UnixNano() / int64(l.size)
	c, found := l.keys[key]
	switch {
	case !found:
		c = &counter{index: idx}
		l.keys[key] = c
	case idx == c.index+1:
		c.index, c.prev, c.curr = idx, c.curr, 0
	case idx > c.index+1:
		c.index, c.prev, c.curr = idx, 0, 0
	}

	start := time.Unix(0, idx*int64(l.size))
	reset = start.Add(l.size)
	weight := 1 - float64(now.Sub(start))/float64(l.size)
	used := float64(c.prev)*weight + float64(c.curr)
	if used >= float64(l.limit) {
		return 0, reset, false
	}
	c.curr++
	return max(l.limit-int(math.Ceil(used+1)), 0), reset, true
}

// Sweep forgets keys that have not been hit for two full windows.
func (l *Limiter) Sweep(now time.Time) {
	idx := now.UnixNano() / int64(l.size)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.keys {
		if idx > c.index+1 {
			delete(l.keys, key)
		}
	}
}

// Run sweeps stale keys every other window until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * l.size)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}

// RateLimit rejects requests over the limiter's budget with 429. Keys default
// to the client IP as resolved by gin. Every response carries the
// X-RateLimit-* headers.
func RateLimit(l *Limiter, key func(*gin.Context) string) gin.HandlerFunc {
	if key == nil {
		key = (*gin.Context).ClientIP
	}
	limit := strconv.Itoa(l.limit)
	return func(c *gin.Context) {
		now := time.Now()
		remaining, reset, ok := l.Allow(key(c), now)

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !ok {
			wait := math.Ceil(reset.Sub(now).Seconds())
			c.Header("Retry-After", strconv.Itoa(int(max(wait, 0))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
