package notify

import (
	"sync"
	"time"
)

// throttle deduplicates identical notifications: a key is allowed once per
// window. Safe for concurrent use.
type throttle struct {
	window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

func newThrottle(window time.Duration) *throttle {
	return &throttle{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// allow reports whether key may fire at now, recording it if so. A window of
// zero or less allows everything.
func (t *throttle) allow(key string, now time.Time) bool {
	if t.window <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.seen[key]; ok && now.Sub(last) < t.window {
		return false
	}
	t.seen[key] = now
	t.prune(now)
	return true
}

// prune drops expired entries so the map does not grow with message variety.
func (t *throttle) prune(now time.Time) {
	if len(t.seen) < 256 {
		return
	}
	for k, last := range t.seen {
		if now.Sub(last) >= t.window {
			delete(t.seen, k)
		}
	}
}
