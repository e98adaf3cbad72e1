package store_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gradeport/go-portal-client/device"
	"github.com/gradeport/go-portal-client/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*store.FileStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.json")
	fs, err := store.NewFileStore(path)
	require.NoError(t, err)
	return fs, path
}

func testHandle() *store.Handle {
	return &store.Handle{
		Token:     "tok-1",
		Username:  "jane",
		Role:      "student",
		SessionID: "sess-1",
	}
}

func TestHandleRoundTrip(t *testing.T) {
	fs, _ := newTestStore(t)

	require.NoError(t, fs.SaveHandle(testHandle()))

	got, err := fs.Handle()
	require.NoError(t, err)
	require.Equal(t, testHandle(), got)
}

func TestHandleNotFoundWhenEmpty(t *testing.T) {
	fs, _ := newTestStore(t)

	_, err := fs.Handle()
	require.ErrorIs(t, err, store.HandleNotFoundErr)
}

func TestStateSurvivesReopen(t *testing.T) {
	fs, path := newTestStore(t)
	require.NoError(t, fs.SaveHandle(testHandle()))
	require.NoError(t, fs.SaveFingerprint(&device.Fingerprint{Hash: "abc"}))

	reopened, err := store.NewFileStore(path)
	require.NoError(t, err)

	handle, err := reopened.Handle()
	require.NoError(t, err)
	require.Equal(t, "sess-1", handle.SessionID)

	fp, err := reopened.Fingerprint()
	require.NoError(t, err)
	require.Equal(t, "abc", fp.Hash)
}

func TestClearWipesEveryKey(t *testing.T) {
	fs, _ := newTestStore(t)
	require.NoError(t, fs.SaveHandle(testHandle()))
	require.NoError(t, fs.SaveFingerprint(&device.Fingerprint{Hash: "abc"}))
	require.NoError(t, fs.TouchActivity(time.Now()))

	require.NoError(t, fs.Clear())

	_, err := fs.Handle()
	require.ErrorIs(t, err, store.HandleNotFoundErr)

	fp, err := fs.Fingerprint()
	require.NoError(t, err)
	require.Nil(t, fp)

	last, err := fs.LastActivity()
	require.NoError(t, err)
	require.True(t, last.IsZero())
}

func TestActivityStampRoundTrip(t *testing.T) {
	fs, _ := newTestStore(t)
	stamp := time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC)

	require.NoError(t, fs.TouchActivity(stamp))

	got, err := fs.LastActivity()
	require.NoError(t, err)
	require.True(t, stamp.Equal(got))
}

// writeExternalState simulates another process overwriting the shared state
// file with a fresh login.
func writeExternalState(t *testing.T, path, sessionID string) {
	t.Helper()

	raw, err := json.Marshal(map[string]string{
		"token":     "tok-other",
		"username":  "jane",
		"role":      "student",
		"sessionId": sessionID,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
}

func TestWatchReportsExternalSessionChange(t *testing.T) {
	fs, path := newTestStore(t)
	require.NoError(t, fs.SaveHandle(testHandle()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changes := make(chan string, 1)
	go func() {
		_ = fs.WatchSessionID(ctx, func(sessionID string) {
			select {
			case changes <- sessionID:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeExternalState(t, path, "sess-2")

	select {
	case got := <-changes:
		require.Equal(t, "sess-2", got)
	case <-ctx.Done():
		t.Fatal("watcher did not report external session change")
	}
}

func TestWatchIgnoresOwnWrites(t *testing.T) {
	fs, _ := newTestStore(t)
	require.NoError(t, fs.SaveHandle(testHandle()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan string, 4)
	go func() {
		_ = fs.WatchSessionID(ctx, func(sessionID string) { changes <- sessionID })
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, fs.TouchActivity(time.Now()))
	require.NoError(t, fs.SaveHandle(&store.Handle{Token: "tok-1", Username: "jane", Role: "student", SessionID: "sess-1"}))

	select {
	case got := <-changes:
		t.Fatalf("own write reported as external change: %q", got)
	case <-time.After(300 * time.Millisecond):
	}
}
