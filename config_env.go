package authctl

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is the prefix of every variable read by [LoadConfigFromEnv].
const EnvPrefix = "AUTHCTL_"

// LoadConfigFromEnv returns [DefaultConfig] overridden by AUTHCTL_* environment
// variables, e.g. AUTHCTL_BACKEND_URL or AUTHCTL_PASSWORD_MIN_LENGTH. Map values
// use "k:v,k:v". The result is validated.
func LoadConfigFromEnv() (Config, error) {
	return loadConfig(nil)
}

func loadConfig(environment map[string]string) (Config, error) {
	cfg := defaultConfig()
	opts := env.Options{Prefix: EnvPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
