package config

import "time"

type TransportConfig interface {
	GetRequestTimeout() time.Duration
	GetSignatureTimezone() string
}

type Transport struct{}

var _ TransportConfig = Transport{}

func (Transport) GetRequestTimeout() time.Duration {
	return 15 * time.Second
}

// GetSignatureTimezone names the fixed zone the remote validates signature
// buckets in.
func (Transport) GetSignatureTimezone() string {
	return GetEnv("PORTAL_SIGNATURE_TZ", "UTC")
}
