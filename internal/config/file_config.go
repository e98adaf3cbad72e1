package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// OAuthProviderConfig holds the optional identity-provider settings for the
// provider login flow.
type OAuthProviderConfig struct {
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// FileConfig is the optional yaml configuration file for the CLI. Unset
// fields fall back to the environment-backed defaults.
type FileConfig struct {
	BaseURL   string               `yaml:"base_url"`
	AppID     string               `yaml:"app_id"`
	StatePath string               `yaml:"state_path"`
	Timezone  string               `yaml:"timezone"`
	OAuth     *OAuthProviderConfig `yaml:"oauth,omitempty"`
}

// LoadFile reads a yaml config file. A missing path returns an empty
// config, not an error.
func LoadFile(path string) (*FileConfig, error) {
	if path == "" {
		return &FileConfig{}, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &FileConfig{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[LoadFile] os.ReadFile")
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "[LoadFile] yaml.Unmarshal")
	}
	return &cfg, nil
}

// Or returns value when non-empty, otherwise fallback.
func Or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
