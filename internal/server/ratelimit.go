package web

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// saveLimiter rate limits article saves per user. A nil *saveLimiter
// allows everything.
type saveLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*userLimiter
	rate      rate.Limit
	burst     int
	lastPrune time.Time
}

// newSaveLimiter returns nil when perMinute is zero, disabling limiting.
func newSaveLimiter(perMinute float64, burst int) *saveLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &saveLimiter{
		limiters:  make(map[string]*userLimiter),
		rate:      rate.Limit(perMinute / 60),
		burst:     burst,
		lastPrune: time.Now(),
	}
}

// Allow reports whether userID may save now.
func (l *saveLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastPrune) > limiterIdle {
		for id, ul := range l.limiters {
			if now.Sub(ul.lastSeen) > limiterIdle {
				delete(l.limiters, id)
			}
		}
		l.lastPrune = now
	}

	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = now
	return ul.limiter.Allow()
}

// retryAfter is the suggested wait in seconds before the next save.
func (l *saveLimiter) retryAfter() int {
	if l == nil || l.rate <= 0 {
		return 1
	}
	return max(int(math.Round(1/float64(l.rate))), 1)
}
