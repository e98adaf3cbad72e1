package config

import "os"

const (
	baseURLVar   = "PORTAL_BASE_URL"
	appIDVar     = "PORTAL_APP_ID"
	statePathVar = "PORTAL_STATE_FILE"
)

type EnvConfig interface {
	GetBaseURL() string
	GetAppID() string
	GetStatePath() string
	GetEnv() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

// GetBaseURL returns the forwarding-proxy base URL the portal is reached
// through.
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

func (EnvVars) GetAppID() string {
	return GetEnv(appIDVar, "gradeport-web")
}

func (EnvVars) GetStatePath() string {
	return GetEnv(statePathVar, "./data/state.json")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
