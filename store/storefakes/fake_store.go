package storefakes

import (
	"context"
	"sync"
	"time"

	"github.com/gradeport/go-portal-client/device"
	"github.com/gradeport/go-portal-client/store"
)

var _ store.Store = (*FakeStore)(nil)
var _ store.Watcher = (*FakeStore)(nil)

// FakeStore is an in-memory Store for tests. EmitSessionID simulates an
// external write landing in the shared state (another tab logging in).
type FakeStore struct {
	lock sync.RWMutex

	handle       *store.Handle
	fingerprint  *device.Fingerprint
	lastActivity time.Time

	watchers []func(sessionID string)
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (fs *FakeStore) SaveHandle(handle *store.Handle) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	copied := *handle
	fs.handle = &copied
	return nil
}

func (fs *FakeStore) Handle() (*store.Handle, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	if fs.handle == nil {
		return nil, store.HandleNotFoundErr
	}
	copied := *fs.handle
	return &copied, nil
}

func (fs *FakeStore) SaveFingerprint(fp *device.Fingerprint) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.fingerprint = fp
	return nil
}

func (fs *FakeStore) Fingerprint() (*device.Fingerprint, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.fingerprint, nil
}

func (fs *FakeStore) TouchActivity(at time.Time) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.lastActivity = at
	return nil
}

func (fs *FakeStore) LastActivity() (time.Time, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.lastActivity, nil
}

func (fs *FakeStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.handle = nil
	fs.fingerprint = nil
	fs.lastActivity = time.Time{}
	return nil
}

func (fs *FakeStore) WatchSessionID(ctx context.Context, onChange func(sessionID string)) error {
	fs.lock.Lock()
	fs.watchers = append(fs.watchers, onChange)
	fs.lock.Unlock()

	<-ctx.Done()
	return nil
}

// EmitSessionID delivers an external session-identifier change to every
// registered watcher, as if another client overwrote the shared state.
// Watchers register from a goroutine spawned by the monitor's Start, so an
// emit issued immediately afterwards briefly waits for the first
// registration instead of silently dropping the event.
func (fs *FakeStore) EmitSessionID(sessionID string) {
	deadline := time.Now().Add(time.Second)
	for {
		fs.lock.RLock()
		registered := len(fs.watchers) > 0
		fs.lock.RUnlock()
		if registered || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	fs.lock.Lock()
	if fs.handle != nil {
		fs.handle.SessionID = sessionID
	}
	watchers := append([]func(string){}, fs.watchers...)
	fs.lock.Unlock()

	for _, fn := range watchers {
		fn(sessionID)
	}
}

// Cleared reports whether no session state remains.
func (fs *FakeStore) Cleared() bool {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.handle == nil && fs.fingerprint == nil && fs.lastActivity.IsZero()
}
