package portal

import "errors"

var (
	// RequestTimeoutErr is returned when the 15s request deadline elapses
	// before the remote responds. User-legible and retryable.
	RequestTimeoutErr = errors.New("request timed out")

	// ConnectivityErr covers generic transport failures. Retryable, and
	// never terminates a session by itself.
	ConnectivityErr = errors.New("could not reach the portal")

	// AuthExpiredErr is returned on 401 responses: the stored token is no
	// longer accepted. Distinguished from a session conflict.
	AuthExpiredErr = errors.New("authentication expired")

	// SessionConflictErr is returned when the remote reports that another
	// login superseded this session.
	SessionConflictErr = errors.New("session superseded by another login")

	// LoginFailedErr is returned when the portal rejects the submitted
	// credentials, or when no credentials were submitted at all.
	LoginFailedErr = errors.New("login rejected")
)
