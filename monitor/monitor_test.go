package monitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gradeport/go-portal-client/monitor"
	"github.com/gradeport/go-portal-client/monitor/monitorfakes"
	"github.com/gradeport/go-portal-client/store"
	"github.com/gradeport/go-portal-client/store/storefakes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	store     *storefakes.FakeStore
	checker   *monitorfakes.FakeSessionChecker
	blocklist *monitorfakes.FakeBlocklist
	monitor   *monitor.Monitor

	mu           sync.Mutex
	terminations []monitor.Termination
	warnings     int
	cleared      int
}

func setupTestFixture(t *testing.T, options ...monitor.Option) *testFixture {
	t.Helper()

	f := &testFixture{
		store:     storefakes.NewFakeStore(),
		checker:   monitorfakes.NewFakeSessionChecker(),
		blocklist: monitorfakes.NewFakeBlocklist(),
	}
	require.NoError(t, f.store.SaveHandle(&store.Handle{
		Token:     "tok-1",
		Username:  "jane",
		Role:      "student",
		SessionID: "sess-1",
	}))

	opts := append([]monitor.Option{
		monitor.WithWatcher(f.store),
		monitor.WithPollSchedule(10*time.Millisecond, 20*time.Millisecond),
		// Idle disabled by default: generous limit, fast tick.
		monitor.WithIdleSchedule(10*time.Second, time.Second, 10*time.Millisecond),
	}, options...)

	m, err := monitor.New(f.store, f.checker, f.blocklist, opts...)
	require.NoError(t, err)
	f.monitor = m

	m.OnTerminate(func(term monitor.Termination) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.terminations = append(f.terminations, term)
	})
	m.OnIdleWarning(func(time.Duration) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.warnings++
	})
	m.OnIdleWarningCleared(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cleared++
	})
	return f
}

func (f *testFixture) start(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, f.monitor.Start(ctx))
}

func (f *testFixture) terminationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.terminations)
}

func (f *testFixture) lastTermination(t *testing.T) monitor.Termination {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.terminations)
	return f.terminations[len(f.terminations)-1]
}

func (f *testFixture) waitForTermination(t *testing.T) {
	t.Helper()

	require.Eventually(t, func() bool {
		return f.terminationCount() > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRemoteConflictTerminatesWithinOnePollCycle(t *testing.T) {
	f := setupTestFixture(t)
	f.checker.SetValid(false)

	f.start(t)
	f.waitForTermination(t)

	require.Equal(t, monitor.ReasonLoggedInElsewhere, f.lastTermination(t).Reason)
	require.Equal(t, monitor.StateNotLoggedIn, f.monitor.State())
	require.True(t, f.store.Cleared(), "local storage keys must be empty after termination")
}

func TestBlockedUserTerminatesWithReason(t *testing.T) {
	f := setupTestFixture(t)
	f.blocklist.SetBlocked(true, "academic hold")

	f.start(t)
	f.waitForTermination(t)

	term := f.lastTermination(t)
	require.Equal(t, monitor.ReasonBlocked, term.Reason)
	require.Equal(t, "academic hold", term.Detail)
}

func TestTransportErrorsFailOpen(t *testing.T) {
	f := setupTestFixture(t)
	f.checker.SetError(errors.New("connection refused"))
	f.blocklist.SetError(errors.New("connection refused"))

	f.start(t)
	time.Sleep(150 * time.Millisecond) // several poll cycles

	require.Zero(t, f.terminationCount(), "transport failures must never terminate")
	require.NotEqual(t, monitor.StateNotLoggedIn, f.monitor.State())
}

func TestExternalSessionChangeTerminates(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t)

	f.store.EmitSessionID("sess-2")
	f.waitForTermination(t)

	require.Equal(t, monitor.ReasonOtherDevice, f.lastTermination(t).Reason)
}

func TestExternalChangeWithSameValueIgnored(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t)

	f.store.EmitSessionID("sess-1")
	time.Sleep(100 * time.Millisecond)

	require.Zero(t, f.terminationCount())
}

func TestExternalChangeWithEmptyValueIgnored(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t)

	f.store.EmitSessionID("")
	time.Sleep(100 * time.Millisecond)

	require.Zero(t, f.terminationCount())
}

func TestTerminationNotifiesExactlyOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t)

	// Watchers racing to terminate.
	f.monitor.Terminate(monitor.Termination{Reason: monitor.ReasonLoggedInElsewhere})
	f.monitor.Terminate(monitor.Termination{Reason: monitor.ReasonOtherDevice})
	f.store.EmitSessionID("sess-9")

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, f.terminationCount())
}

func TestIdleWarningThenForcedLogout(t *testing.T) {
	f := setupTestFixture(t,
		monitor.WithIdleSchedule(200*time.Millisecond, 100*time.Millisecond, 10*time.Millisecond))
	f.start(t)

	f.waitForTermination(t)

	require.Equal(t, monitor.ReasonIdleTimeout, f.lastTermination(t).Reason)
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, 1, f.warnings, "warning must fire once before forced logout")
}

func TestActivityResetsIdleClock(t *testing.T) {
	f := setupTestFixture(t,
		monitor.WithIdleSchedule(150*time.Millisecond, 50*time.Millisecond, 10*time.Millisecond))
	f.start(t)

	// Keep the session active for well past the idle limit.
	for i := 0; i < 8; i++ {
		time.Sleep(50 * time.Millisecond)
		f.monitor.RecordActivity()
	}
	require.Zero(t, f.terminationCount())

	// Then go idle and expect the forced logout.
	f.waitForTermination(t)
	require.Equal(t, monitor.ReasonIdleTimeout, f.lastTermination(t).Reason)
}

func TestActivityDuringWarningDismissesIt(t *testing.T) {
	f := setupTestFixture(t,
		monitor.WithIdleSchedule(400*time.Millisecond, 300*time.Millisecond, 10*time.Millisecond))
	f.start(t)

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.warnings > 0
	}, 2*time.Second, 5*time.Millisecond)

	f.monitor.RecordActivity()

	f.mu.Lock()
	require.Equal(t, 1, f.cleared)
	f.mu.Unlock()

	time.Sleep(150 * time.Millisecond)
	require.Zero(t, f.terminationCount(), "renewed activity must reset the idle clock")
}

func TestRestartExpiresSessionIdleAcrossIt(t *testing.T) {
	f := setupTestFixture(t,
		monitor.WithIdleSchedule(500*time.Millisecond, 100*time.Millisecond, 10*time.Millisecond))
	// The activity stamp a previous run left behind, far past the limit.
	require.NoError(t, f.store.TouchActivity(time.Now().Add(-time.Hour)))

	f.start(t)
	f.waitForTermination(t)

	require.Equal(t, monitor.ReasonIdleTimeout, f.lastTermination(t).Reason)
}

func TestRestartResumesIdleWindowMidCountdown(t *testing.T) {
	f := setupTestFixture(t,
		monitor.WithIdleSchedule(10*time.Second, 9*time.Second, 10*time.Millisecond))
	require.NoError(t, f.store.TouchActivity(time.Now().Add(-2*time.Second)))

	f.start(t)

	// The resumed window is already inside the warning lead, so the
	// warning fires on the first idle tick; expiry is still 8s away.
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.warnings > 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Zero(t, f.terminationCount())
}

func TestStartWithoutStoredSessionFails(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Clear())

	err := f.monitor.Start(context.Background())
	require.ErrorIs(t, err, store.HandleNotFoundErr)
}

func TestStopIsSilent(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t)

	f.monitor.Stop()
	require.Equal(t, monitor.StateNotLoggedIn, f.monitor.State())

	// A late watcher firing after an orderly stop must not notify.
	f.monitor.Terminate(monitor.Termination{Reason: monitor.ReasonOtherDevice})
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, f.terminationCount())
}

// slowChecker blocks long enough that poll ticks overlap.
type slowChecker struct {
	mu    sync.Mutex
	delay time.Duration
	calls int
}

func (s *slowChecker) IsValid(ctx context.Context, _, _ string) (bool, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	return true, nil
}

func (s *slowChecker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestOverlappingPollTicksAreDroppedNotQueued(t *testing.T) {
	f := setupTestFixture(t)
	slow := &slowChecker{delay: 100 * time.Millisecond}

	m, err := monitor.New(f.store, slow, f.blocklist,
		monitor.WithPollSchedule(5*time.Millisecond, 10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))

	time.Sleep(250 * time.Millisecond)
	m.Stop()

	// With a 100ms check and a 10ms interval, queuing would produce ~25
	// calls; dropping overlaps keeps it near elapsed/delay.
	require.LessOrEqual(t, slow.callCount(), 5)
}
