package config

import "time"

type GovernorConfig interface {
	GetRateWindow() time.Duration
	GetRateMaxCalls() int
	GetLockoutDuration() time.Duration
	GetPrivilegedRoles() []string
}

type Governor struct{}

var _ GovernorConfig = Governor{}

func (Governor) GetRateWindow() time.Duration {
	return 1000 * time.Millisecond
}

func (Governor) GetRateMaxCalls() int {
	return 30
}

func (Governor) GetLockoutDuration() time.Duration {
	return 180 * time.Second
}

// GetPrivilegedRoles lists the roles exempt from rate limiting. The bypass
// trusts the locally stored role with no server-side re-verification.
func (Governor) GetPrivilegedRoles() []string {
	return []string{"admin"}
}
