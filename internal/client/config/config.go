package config

import (
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
)

// Config holds runtime settings for the bulletin client.
//
// Fields:
//   - ServerEndpointAddr: host:port of the bulletin server gRPC endpoint.
//   - ServerPublicKey: expected signer of GetServerInfo replies; empty skips
//     the check.
//   - HQPublicKey: headquarters account granted read access to new bulletins.
//   - OnlineCheckInterval: how often the client checks server reachability.
type Config struct {
	ServerEndpointAddr  string        `envconfig:"SERVER_ADDR"`
	ServerPublicKey     string        `envconfig:"SERVER_PUBLIC_KEY"`
	DatabaseDSN         string        `envconfig:"DATABASE_DSN"`
	KeyPairFile         string        `envconfig:"KEY_PAIR_FILE"`
	HQPublicKey         string        `envconfig:"HQ_PUBLIC_KEY"`
	LogFile             string        `envconfig:"LOG_FILE"`
	ExportDir           string        `envconfig:"EXPORT_DIR"`
	ChunkSize           int           `envconfig:"CHUNK_SIZE"`
	OnlineCheckInterval time.Duration `envconfig:"ONLINE_CHECK_INTERVAL"`
}

// EnvPrefix prefixes every environment variable the client reads.
const EnvPrefix = "BULLETIN_CLIENT"

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabaseDSN = "bulletins.db"
	c.KeyPairFile = "client.keypair"
	c.LogFile = "client.log"
	c.ExportDir = "exports"
	c.ChunkSize = transfer.MaxChunkSize
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags (if present).
// Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
