package config

import "github.com/kelseyhightower/envconfig"

// parseEnv overlays BULLETIN_CLIENT_* variables onto cfg.
func parseEnv(cfg *Config) {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		panic(err)
	}
}
