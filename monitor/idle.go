package monitor

import (
	"sync"
	"time"
)

type idleAction int

const (
	idleNone idleAction = iota
	idleWarn
	idleExpire
)

// idleWatcher tracks elapsed time since the last observed user input. It
// holds no timers of its own; the monitor drives it from a scan loop so the
// decision logic stays deterministic under an injected clock.
type idleWatcher struct {
	mu sync.Mutex

	limit   time.Duration
	warning time.Duration

	lastActivity time.Time
	warned       bool
}

func newIdleWatcher(limit, warning time.Duration, now time.Time) *idleWatcher {
	return &idleWatcher{
		limit:        limit,
		warning:      warning,
		lastActivity: now,
	}
}

// reset restarts the idle clock. Returns whether a warning was pending, so
// the caller can dismiss it.
func (w *idleWatcher) reset(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	wasWarned := w.warned
	w.lastActivity = now
	w.warned = false
	return wasWarned
}

// tick evaluates the idle clock. The warning fires once per idle episode,
// at the warning lead time before the limit; expiry fires at the limit.
func (w *idleWatcher) tick(now time.Time) idleAction {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := now.Sub(w.lastActivity)
	if elapsed >= w.limit {
		return idleExpire
	}
	if elapsed >= w.limit-w.warning && !w.warned {
		w.warned = true
		return idleWarn
	}
	return idleNone
}

// remaining reports the time left before forced logout.
func (w *idleWatcher) remaining(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	left := w.limit - now.Sub(w.lastActivity)
	if left < 0 {
		return 0
	}
	return left
}
