// Package monitor enforces the client's view of the portal's
// single-active-session policy. Once a user is logged in it runs three
// independent watchers: a periodic poll against the backend session store
// and block list, a storage-change listener catching logins completed by
// another client of the same state, and a local idle timer. Any of them can
// unilaterally terminate the local session; termination is idempotent and
// clears all durable client state.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gradeport/go-portal-client/portal"
	"github.com/gradeport/go-portal-client/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// State is the monitor's lifecycle position.
type State int32

const (
	StateNotLoggedIn State = iota
	StateLoggedIn
	StateChecking
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateNotLoggedIn:
		return "not_logged_in"
	case StateLoggedIn:
		return "logged_in"
	case StateChecking:
		return "checking"
	case StateTerminating:
		return "terminating"
	}
	return "unknown"
}

// Reason identifies why a session was terminated.
type Reason int

const (
	ReasonBlocked Reason = iota
	ReasonLoggedInElsewhere
	ReasonOtherDevice
	ReasonIdleTimeout
)

// Message returns the user-visible explanation for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonBlocked:
		return "your account has been blocked"
	case ReasonLoggedInElsewhere:
		return "your account was logged in elsewhere"
	case ReasonOtherDevice:
		return "your account was used on another device"
	case ReasonIdleTimeout:
		return "you were logged out after a period of inactivity"
	}
	return "session terminated"
}

// Termination describes one forced logout.
type Termination struct {
	Reason Reason
	Detail string
}

// SessionChecker asks the backend session store whether the local session
// is still the account's single active one.
type SessionChecker interface {
	IsValid(ctx context.Context, username, sessionID string) (bool, error)
}

// Blocklist checks the username against the backend block list.
type Blocklist interface {
	IsBlocked(ctx context.Context, username string) (portal.BlockStatus, error)
}

const (
	defaultPollGrace    = 3 * time.Second
	defaultPollInterval = 5 * time.Second
	defaultIdleLimit    = 15 * time.Minute
	defaultIdleWarning  = 60 * time.Second
	defaultIdleTick     = time.Second
)

// Monitor is the session integrity monitor. One instance covers one logical
// session at a time; Start after each login, Stop (or a termination) ends it.
type Monitor struct {
	store     store.Store
	watcher   store.Watcher
	sessions  SessionChecker
	blocklist Blocklist

	pollGrace    time.Duration
	pollInterval time.Duration
	idleLimit    time.Duration
	idleWarning  time.Duration
	idleTick     time.Duration
	nowTime      func() time.Time

	state    atomic.Int32
	inFlight atomic.Bool
	idle     *idleWatcher

	mu            sync.Mutex
	cancel        context.CancelFunc
	terminated    *sync.Once
	username      string
	sessionID     string
	prevSessionID string

	onTerminate   []func(Termination)
	onIdleWarning func(remaining time.Duration)
	onIdleCleared func()
}

// Option modifies a Monitor instance.
type Option func(*Monitor)

// WithWatcher attaches a storage-change watcher (cross-client detection).
func WithWatcher(w store.Watcher) Option {
	return func(m *Monitor) {
		m.watcher = w
	}
}

// WithPollSchedule overrides the first-check grace delay and poll interval.
func WithPollSchedule(grace, interval time.Duration) Option {
	return func(m *Monitor) {
		m.pollGrace = grace
		m.pollInterval = interval
	}
}

// WithIdleSchedule overrides the idle limit, the warning lead time, and the
// idle scan resolution.
func WithIdleSchedule(limit, warning, tick time.Duration) Option {
	return func(m *Monitor) {
		m.idleLimit = limit
		m.idleWarning = warning
		m.idleTick = tick
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Monitor) {
		m.nowTime = nowFunc
	}
}

// New initializes a Monitor with required collaborators.
func New(st store.Store, sessions SessionChecker, blocklist Blocklist, options ...Option) (*Monitor, error) {
	if st == nil {
		return nil, errors.New("[monitor.New] store is required")
	}
	if sessions == nil {
		return nil, errors.New("[monitor.New] session checker is required")
	}
	if blocklist == nil {
		return nil, errors.New("[monitor.New] blocklist is required")
	}

	m := &Monitor{
		store:        st,
		sessions:     sessions,
		blocklist:    blocklist,
		pollGrace:    defaultPollGrace,
		pollInterval: defaultPollInterval,
		idleLimit:    defaultIdleLimit,
		idleWarning:  defaultIdleWarning,
		idleTick:     defaultIdleTick,
		nowTime:      time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// OnTerminate registers a termination listener. Listeners fire at most once
// per Start, even when watchers race to terminate.
func (m *Monitor) OnTerminate(fn func(Termination)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTerminate = append(m.onTerminate, fn)
}

// OnIdleWarning registers the idle countdown warning callback.
func (m *Monitor) OnIdleWarning(fn func(remaining time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onIdleWarning = fn
}

// OnIdleWarningCleared registers the callback dismissing the warning after
// renewed activity.
func (m *Monitor) OnIdleWarningCleared(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onIdleCleared = fn
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Start begins watching the currently stored session. Fails when no session
// handle is stored.
func (m *Monitor) Start(ctx context.Context) error {
	handle, err := m.store.Handle()
	if err != nil {
		return errors.Wrap(err, "[Start] no active session to monitor")
	}

	runCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	m.terminated = &sync.Once{}
	m.username = handle.Username
	m.sessionID = handle.SessionID
	m.prevSessionID = handle.SessionID
	m.mu.Unlock()

	// Resume the idle window from the persisted stamp when one exists, so a
	// restart does not reset the countdown. A session idle across the
	// restart still expires on the first idle tick.
	now := m.nowTime()
	seed := now
	if last, err := m.store.LastActivity(); err == nil && !last.IsZero() && last.Before(now) {
		seed = last
	}
	m.idle = newIdleWatcher(m.idleLimit, m.idleWarning, seed)
	if seed.Equal(now) {
		_ = m.store.TouchActivity(now)
	}

	m.state.Store(int32(StateLoggedIn))

	go m.pollLoop(runCtx)
	go m.idleLoop(runCtx)
	if m.watcher != nil {
		go func() {
			if err := m.watcher.WatchSessionID(runCtx, m.handleExternalChange); err != nil {
				log.Debug().Err(err).Msg("session storage watcher stopped")
			}
		}()
	}

	log.Info().Str("username", handle.Username).Msg("session integrity monitor started")
	return nil
}

// Stop cancels all watchers without clearing state or notifying listeners.
// Used on an orderly logout, where the caller owns the cleanup.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	once := m.terminated
	m.cancel = nil
	m.mu.Unlock()

	if once != nil {
		// Consume the once so a late watcher tick cannot notify after an
		// orderly stop.
		once.Do(func() {})
	}
	if cancel != nil {
		cancel()
	}
	m.state.Store(int32(StateNotLoggedIn))
}

// RecordActivity is the input-event entry point for the idle watcher. Any
// observed activity resets the idle clock and dismisses a pending warning.
func (m *Monitor) RecordActivity() {
	now := m.nowTime()
	if m.idle == nil {
		return
	}
	warned := m.idle.reset(now)
	_ = m.store.TouchActivity(now)

	if warned {
		m.mu.Lock()
		cleared := m.onIdleCleared
		m.mu.Unlock()
		if cleared != nil {
			cleared()
		}
	}
}

// Terminate force-ends the local session: all durable state is cleared, all
// watchers cancelled, and listeners notified exactly once. Safe to call
// redundantly.
func (m *Monitor) Terminate(t Termination) {
	m.mu.Lock()
	once := m.terminated
	cancel := m.cancel
	listeners := append([]func(Termination){}, m.onTerminate...)
	m.mu.Unlock()

	if once == nil {
		return
	}
	once.Do(func() {
		m.state.Store(int32(StateTerminating))
		log.Warn().Str("reason", t.Reason.Message()).Str("detail", t.Detail).Msg("terminating session")

		if err := m.store.Clear(); err != nil {
			log.Err(err).Msg("failed to clear local session state")
		}
		if cancel != nil {
			cancel()
		}
		m.state.Store(int32(StateNotLoggedIn))

		for _, fn := range listeners {
			fn(t)
		}
	})
}

// pollLoop runs the periodic conflict check: first after the grace delay,
// then at the poll interval.
func (m *Monitor) pollLoop(ctx context.Context) {
	grace := time.NewTimer(m.pollGrace)
	defer grace.Stop()

	select {
	case <-ctx.Done():
		return
	case <-grace.C:
		m.pollTick(ctx)
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollTick(ctx)
		}
	}
}

// pollTick performs one best-effort conflict check. Overlapping ticks are
// dropped, never queued: a slow response must not build a backlog.
func (m *Monitor) pollTick(ctx context.Context) {
	if !m.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer m.inFlight.Store(false)

	m.state.CompareAndSwap(int32(StateLoggedIn), int32(StateChecking))
	defer m.state.CompareAndSwap(int32(StateChecking), int32(StateLoggedIn))

	m.mu.Lock()
	username := m.username
	sessionID := m.sessionID
	m.mu.Unlock()

	status, err := m.blocklist.IsBlocked(ctx, username)
	if err != nil {
		// Availability over enforcement: a failed check only delays
		// detection by one cycle.
		log.Debug().Err(err).Msg("block-list check failed, skipping this tick")
	} else if status.Blocked {
		m.Terminate(Termination{Reason: ReasonBlocked, Detail: status.Reason})
		return
	}

	valid, err := m.sessions.IsValid(ctx, username, sessionID)
	if err != nil {
		log.Debug().Err(err).Msg("session validity check failed, skipping this tick")
		return
	}
	if !valid {
		m.Terminate(Termination{Reason: ReasonLoggedInElsewhere})
	}
}

// handleExternalChange reacts to out-of-band writes of the session
// identifier. A differing, non-empty pair means another client of the same
// storage completed a fresh login between poll ticks.
func (m *Monitor) handleExternalChange(sessionID string) {
	m.mu.Lock()
	prev := m.prevSessionID
	m.prevSessionID = sessionID
	m.mu.Unlock()

	if prev == "" || sessionID == "" || prev == sessionID {
		return
	}
	m.Terminate(Termination{Reason: ReasonOtherDevice})
}

// idleLoop scans the idle clock at the configured resolution.
func (m *Monitor) idleLoop(ctx context.Context) {
	ticker := time.NewTicker(m.idleTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch m.idle.tick(m.nowTime()) {
			case idleWarn:
				m.mu.Lock()
				warn := m.onIdleWarning
				m.mu.Unlock()
				if warn != nil {
					warn(m.idle.remaining(m.nowTime()))
				}
			case idleExpire:
				m.Terminate(Termination{Reason: ReasonIdleTimeout})
				return
			}
		}
	}
}
