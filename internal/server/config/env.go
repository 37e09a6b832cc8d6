package config

import "github.com/kelseyhightower/envconfig"

// parseEnv overlays BULLETIN_SERVER_* variables. Unset variables leave the
// current value alone; a malformed value panics like a malformed JSON file.
func parseEnv(config *Config) {
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		panic(err)
	}
}
