package governor

import "errors"

var (
	// RateLimitExceededErr is returned for every rejected call. It must
	// reach the caller of the network layer unmodified: it is never
	// retried and never logged as a normal network failure.
	RateLimitExceededErr = errors.New("rate limit exceeded")
)
