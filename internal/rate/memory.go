package rate

import (
	"sync"
	"time"
)

// Policy is a fixed window: at most Limit hits per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

type window struct {
	count int
	start time.Time
}

// Limiter keeps fixed-window counters in memory. Counters are per
// process; that matches a single-instance deployment.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]window
	lastGC  time.Time
	now     func() time.Time
}

func NewLimiter() *Limiter {
	now := func() time.Time { return time.Now().UTC() }
	return &Limiter{windows: map[string]window{}, lastGC: now(), now: now}
}

// Allow records a hit for key. When the hit is refused, retryAfter is the
// time left in the current window.
func (l *Limiter) Allow(key string, p Policy) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastGC) > time.Minute {
		for k, w := range l.windows {
			if now.Sub(w.start) > 3*p.Window {
				delete(l.windows, k)
			}
		}
		l.lastGC = now
	}
	w, found := l.windows[key]
	if !found || now.Sub(w.start) >= p.Window {
		l.windows[key] = window{count: 1, start: now}
		return true, 0
	}
	if w.count >= p.Limit {
		return false, p.Window - now.Sub(w.start)
	}
	w.count++
	l.windows[key] = w
	return true, 0
}
