package config

import "time"

type MonitorConfig interface {
	GetPollGrace() time.Duration
	GetPollInterval() time.Duration
	GetIdleLimit() time.Duration
	GetIdleWarning() time.Duration
}

type Monitor struct{}

var _ MonitorConfig = Monitor{}

func (Monitor) GetPollGrace() time.Duration {
	return 3 * time.Second
}

func (Monitor) GetPollInterval() time.Duration {
	return 5 * time.Second
}

func (Monitor) GetIdleLimit() time.Duration {
	return 15 * time.Minute
}

// GetIdleWarning is the countdown window shown before the idle limit.
func (Monitor) GetIdleWarning() time.Duration {
	return 60 * time.Second
}
