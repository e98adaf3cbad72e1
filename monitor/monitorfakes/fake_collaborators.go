package monitorfakes

import (
	"context"
	"sync"

	"github.com/gradeport/go-portal-client/monitor"
	"github.com/gradeport/go-portal-client/portal"
)

var _ monitor.SessionChecker = (*FakeSessionChecker)(nil)
var _ monitor.Blocklist = (*FakeBlocklist)(nil)

// FakeSessionChecker answers session-validity polls from preset state.
type FakeSessionChecker struct {
	lock  sync.RWMutex
	valid bool
	err   error
	calls int
}

func NewFakeSessionChecker() *FakeSessionChecker {
	return &FakeSessionChecker{valid: true}
}

func (f *FakeSessionChecker) IsValid(_ context.Context, _, _ string) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.valid, nil
}

func (f *FakeSessionChecker) SetValid(valid bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.valid = valid
}

func (f *FakeSessionChecker) SetError(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.err = err
}

func (f *FakeSessionChecker) Calls() int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.calls
}

// FakeBlocklist answers block-list polls from preset state.
type FakeBlocklist struct {
	lock   sync.RWMutex
	status portal.BlockStatus
	err    error
}

func NewFakeBlocklist() *FakeBlocklist {
	return &FakeBlocklist{}
}

func (f *FakeBlocklist) IsBlocked(_ context.Context, _ string) (portal.BlockStatus, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	if f.err != nil {
		return portal.BlockStatus{}, f.err
	}
	return f.status, nil
}

func (f *FakeBlocklist) SetBlocked(blocked bool, reason string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.status = portal.BlockStatus{Blocked: blocked, Reason: reason}
}

func (f *FakeBlocklist) SetError(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.err = err
}
