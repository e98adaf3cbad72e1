package config

type Config interface {
	EnvConfig
	GovernorConfig
	MonitorConfig
	TransportConfig
}

type mainConfig struct {
	EnvVars
	Governor
	Monitor
	Transport
}

func New() Config {
	return mainConfig{}
}
