package ui

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttle limits redraws of running activities, one limiter per activity
type throttle struct {
	mu       sync.Mutex
	limit    rate.Limit
	limiters map[string]*rate.Limiter
	last     map[string]string
}

// newThrottle allows one redraw per interval. A zero interval disables the
// limit; repeated texts are still skipped.
func newThrottle(interval time.Duration) *throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &throttle{
		limit:    limit,
		limiters: make(map[string]*rate.Limiter),
		last:     make(map[string]string),
	}
}

// allow reports whether text should be drawn for id now
func (t *throttle) allow(id, text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.last[id]; ok && prev == text {
		return false
	}

	limiter, ok := t.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(t.limit, 1)
		t.limiters[id] = limiter
	}
	if !limiter.Allow() {
		return false
	}
	t.last[id] = text
	return true
}

// forget drops the state for id once its activity ended
func (t *throttle) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.limiters, id)
	delete(t.last, id)
}
