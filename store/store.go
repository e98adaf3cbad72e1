// Package store owns the durable client-side session state: the local
// session handle, the device fingerprint blob, and the idle-activity stamp.
// All keys are cleared atomically on logout or forced termination.
package store

import (
	"context"
	"time"

	"github.com/gradeport/go-portal-client/device"
)

// Handle is the client-owned session handle. It is immutable after
// creation: a new login produces a new Handle, never a mutation.
type Handle struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"sessionId"`
}

// Store is the durable client storage interface.
type Store interface {
	// SaveHandle persists the session handle created at login.
	SaveHandle(handle *Handle) error

	// Handle retrieves the current session handle. Returns
	// HandleNotFoundErr when no session is stored.
	Handle() (*Handle, error)

	// SaveFingerprint persists the device fingerprint captured at login.
	SaveFingerprint(fp *device.Fingerprint) error

	// Fingerprint retrieves the stored device fingerprint, or nil when
	// none has been captured.
	Fingerprint() (*device.Fingerprint, error)

	// TouchActivity records the time of the last observed user input.
	TouchActivity(at time.Time) error

	// LastActivity returns the last recorded input time (zero when none).
	LastActivity() (time.Time, error)

	// Clear atomically removes every stored key.
	Clear() error
}

// Watcher delivers out-of-band changes to the stored session identifier —
// the analogue of a browser storage event letting one tab observe a login
// completed by another. The mechanism is implementation-specific (file
// notification, polling, push) so it can be swapped per platform.
type Watcher interface {
	// WatchSessionID blocks until ctx is cancelled, invoking onChange
	// with the new session identifier whenever an external write lands.
	// Writes made through this Store instance are not reported.
	WatchSessionID(ctx context.Context, onChange func(sessionID string)) error
}
