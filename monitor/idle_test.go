package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIdleWatcherWarnsAtLeadTimeAndExpiresAtLimit(t *testing.T) {
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	w := newIdleWatcher(15*time.Minute, time.Minute, start)

	require.Equal(t, idleNone, w.tick(start.Add(13*time.Minute)))
	require.Equal(t, idleWarn, w.tick(start.Add(14*time.Minute)))
	// Warning fires once per idle episode.
	require.Equal(t, idleNone, w.tick(start.Add(14*time.Minute+30*time.Second)))
	require.Equal(t, idleExpire, w.tick(start.Add(15*time.Minute)))
}

func TestIdleWatcherResetRestartsEpisode(t *testing.T) {
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	w := newIdleWatcher(15*time.Minute, time.Minute, start)

	require.Equal(t, idleWarn, w.tick(start.Add(14*time.Minute)))

	wasWarned := w.reset(start.Add(14*time.Minute+30*time.Second))
	require.True(t, wasWarned)

	// Clock restarted: the old expiry point is now well inside the limit.
	require.Equal(t, idleNone, w.tick(start.Add(15*time.Minute)))
	require.Equal(t, idleWarn, w.tick(start.Add(28*time.Minute+30*time.Second)))
}

func TestIdleWatcherResetWithoutWarning(t *testing.T) {
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	w := newIdleWatcher(15*time.Minute, time.Minute, start)

	require.False(t, w.reset(start.Add(time.Minute)))
}

func TestIdleWatcherRemaining(t *testing.T) {
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	w := newIdleWatcher(15*time.Minute, time.Minute, start)

	require.Equal(t, time.Minute, w.remaining(start.Add(14*time.Minute)))
	require.Equal(t, time.Duration(0), w.remaining(start.Add(16*time.Minute)))
}
