package guardrails

import (
	"strconv"
	"sync"
	"time"
)

// DefaultRatePerMinute is the per-user request ceiling.
const DefaultRatePerMinute = 30

// RateLimiter applies per-user rate limiting over coarse fixed
// 60-second buckets keyed by user+minute. The window update is one
// atomic read-modify-write under the mutex, so concurrent requests
// never lose counts.
type RateLimiter struct {
	mu        sync.Mutex
	perMinute int
	buckets   map[string]int // key: userID + ":" + unixMinute

	// now is swappable for tests.
	now func() time.Time
}

// NewRateLimiter creates a limiter. perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		buckets:   make(map[string]int),
		now:       time.Now,
	}
}

// SetNowFunc swaps the clock source. Test hook.
func (l *RateLimiter) SetNowFunc(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Allow reports whether this request fits the user's current bucket,
// counting it if so. Old buckets are pruned opportunistically on each
// call rather than by a background timer.
func (l *RateLimiter) Allow(userID string) bool {
	if l.perMinute <= 0 {
		return true
	}
	if userID == "" {
		userID = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	minute := l.now().UTC().Unix() / 60
	key := userID + ":" + strconv.FormatInt(minute, 10)

	l.pruneLocked(minute)

	if l.buckets[key] >= l.perMinute {
		return false
	}
	l.buckets[key]++
	return true
}

// pruneLocked drops buckets older than the previous minute.
func (l *RateLimiter) pruneLocked(currentMinute int64) {
	if len(l.buckets) == 0 {
		return
	}
	for key := range l.buckets {
		i := len(key) - 1
		for i >= 0 && key[i] != ':' {
			i--
		}
		if i < 0 {
			delete(l.buckets, key)
			continue
		}
		m, err := strconv.ParseInt(key[i+1:], 10, 64)
		if err != nil || m < currentMinute-1 {
			delete(l.buckets, key)
		}
	}
}
