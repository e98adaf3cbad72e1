// Package governor throttles abusive request bursts from the local client.
// Every governed API call asks the Governor for admission before any signing
// or network work happens; once the sliding window overflows the Governor
// locks and rejects everything until an explicit reset.
package governor

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultWindow       = 1000 * time.Millisecond
	defaultMaxCalls     = 30
	defaultLockDuration = 180 * time.Second
)

// RoleFunc reports the role the client is currently authenticated with.
// It is consulted on every call, not captured at construction, because the
// stored role can change mid-session.
type RoleFunc func() string

// LockoutEvent is broadcast to subscribers when the Governor locks.
type LockoutEvent struct {
	Duration    time.Duration
	LockedUntil time.Time
}

// Governor is a sliding-window request counter with a lockout state machine.
// All governed call sites must share one instance so they observe the same
// lockout instantly.
type Governor struct {
	mu sync.Mutex

	window       time.Duration
	maxCalls     int
	lockDuration time.Duration

	timestamps  []time.Time
	locked      bool
	lockedUntil time.Time

	role        RoleFunc
	privileged  map[string]struct{}
	subscribers []func(LockoutEvent)
	nowTime     func() time.Time
}

// Option modifies a Governor instance.
type Option func(*Governor)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(g *Governor) {
		g.nowTime = nowFunc
	}
}

// WithWindow overrides the sliding window length and capacity.
func WithWindow(window time.Duration, maxCalls int) Option {
	return func(g *Governor) {
		g.window = window
		g.maxCalls = maxCalls
	}
}

// WithLockDuration overrides the default lockout duration.
func WithLockDuration(d time.Duration) Option {
	return func(g *Governor) {
		g.lockDuration = d
	}
}

// WithRoleFunc sets the source of the currently stored role.
func WithRoleFunc(role RoleFunc) Option {
	return func(g *Governor) {
		g.role = role
	}
}

// WithPrivilegedRoles sets the roles exempt from window enforcement.
func WithPrivilegedRoles(roles ...string) Option {
	return func(g *Governor) {
		g.privileged = make(map[string]struct{}, len(roles))
		for _, r := range roles {
			g.privileged[r] = struct{}{}
		}
	}
}

// New creates a Governor with the portal defaults: 30 admitted calls per
// 1000ms window and a 180s lockout.
func New(options ...Option) *Governor {
	g := &Governor{
		window:       defaultWindow,
		maxCalls:     defaultMaxCalls,
		lockDuration: defaultLockDuration,
		privileged:   map[string]struct{}{"admin": {}},
		nowTime:      time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Subscribe registers a lockout listener. The Governor does not know who is
// listening; events are fire-and-forget.
func (g *Governor) Subscribe(fn func(LockoutEvent)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribers = append(g.subscribers, fn)
}

// CheckAndRecord admits or rejects one call. Privileged callers (per the
// currently stored role) are neither counted nor blocked — an unconditional
// client-trusted bypass with no server-side re-verification, preserved from
// the portal's original policy. The call that pushes the window over
// capacity trips the lockout; while locked every call fails fast with
// RateLimitExceededErr without re-measuring the window.
func (g *Governor) CheckAndRecord() error {
	g.mu.Lock()

	if g.role != nil {
		if _, ok := g.privileged[g.role()]; ok {
			g.mu.Unlock()
			return nil
		}
	}

	if g.locked {
		g.mu.Unlock()
		return RateLimitExceededErr
	}

	now := g.nowTime()
	g.evict(now)

	if len(g.timestamps) >= g.maxCalls {
		event := g.lock(now, g.lockDuration)
		subs := append([]func(LockoutEvent){}, g.subscribers...)
		g.mu.Unlock()

		log.Warn().
			Dur("duration", event.Duration).
			Int("max_calls", g.maxCalls).
			Msg("request burst exceeded window capacity, locking out")
		for _, fn := range subs {
			fn(event)
		}
		return RateLimitExceededErr
	}

	g.timestamps = append(g.timestamps, now)
	g.mu.Unlock()
	return nil
}

// Trip forces a lockout for the given duration without the window having
// been exceeded. Used by manual security drills.
func (g *Governor) Trip(duration time.Duration) {
	g.mu.Lock()
	event := g.lock(g.nowTime(), duration)
	subs := append([]func(LockoutEvent){}, g.subscribers...)
	g.mu.Unlock()

	log.Info().Dur("duration", duration).Msg("lockout tripped manually")
	for _, fn := range subs {
		fn(event)
	}
}

// Reset clears the lockout and the timestamp history. It is the only way
// out of a lockout besides a fresh process, and is idempotent.
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locked = false
	g.lockedUntil = time.Time{}
	g.timestamps = nil
}

// Locked reports the current lockout state and, when locked, its deadline.
func (g *Governor) Locked() (bool, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked, g.lockedUntil
}

// lock transitions to LOCKED. Caller must hold g.mu.
func (g *Governor) lock(now time.Time, duration time.Duration) LockoutEvent {
	g.locked = true
	g.lockedUntil = now.Add(duration)
	return LockoutEvent{Duration: duration, LockedUntil: g.lockedUntil}
}

// evict drops timestamps older than the window. Caller must hold g.mu.
func (g *Governor) evict(now time.Time) {
	cutoff := now.Add(-g.window)
	kept := g.timestamps[:0]
	for _, ts := range g.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	g.timestamps = kept
}
