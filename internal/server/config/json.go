package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/flagx"
	"github.com/dmitrijs2005/bulletinkeeper/internal/timex"
)

// JsonConfig is the file form of Config. Durations use timex.Duration so
// both "90s" and integer nanoseconds are accepted. Only keys present in
// the file override the current values.
type JsonConfig struct {
	EndpointAddrGRPC    *string         `json:"endpoint_addr_grpc"`
	MetricsAddr         *string         `json:"metrics_addr"`
	LogFile             *string         `json:"log_file"`
	StorageBackend      *string         `json:"storage_backend"`
	DatabaseDSN         *string         `json:"database_dsn"`
	S3AccessKey         *string         `json:"s3_access_key"`
	S3SecretKey         *string         `json:"s3_secret_key"`
	S3Bucket            *string         `json:"s3_bucket"`
	S3Region            *string         `json:"s3_region"`
	S3BaseEndpoint      *string         `json:"s3_base_endpoint"`
	KeyPairFile         *string         `json:"key_pair_file"`
	KeyPairPassphrase   *string         `json:"key_pair_passphrase"`
	MagicWord           *string         `json:"magic_word"`
	MirrorsWhoCallUsDir *string         `json:"mirrors_who_call_us_dir"`
	MirrorSources       []string        `json:"mirror_sources"`
	MirrorPullInterval  *timex.Duration `json:"mirror_pull_interval"`
	MaxChunkSize        *int            `json:"max_chunk_size"`
	MaxUploadSize       *int64          `json:"max_upload_size"`
	StagingDir          *string         `json:"staging_dir"`
	StagingTTL          *timex.Duration `json:"staging_ttl"`
	ServerInfoTTL       *timex.Duration `json:"server_info_ttl"`
}

// parseJson loads the file named by -c/-config, if any, into config. An
// unreadable or invalid file panics.
func parseJson(config *Config) {
	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.LogFile, c.LogFile)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.KeyPairFile, c.KeyPairFile)
	setString(&config.KeyPairPassphrase, c.KeyPairPassphrase)
	setString(&config.MagicWord, c.MagicWord)
	setString(&config.MirrorsWhoCallUsDir, c.MirrorsWhoCallUsDir)
	setString(&config.StagingDir, c.StagingDir)
	setDuration(&config.MirrorPullInterval, c.MirrorPullInterval)
	setDuration(&config.StagingTTL, c.StagingTTL)
	setDuration(&config.ServerInfoTTL, c.ServerInfoTTL)
	if c.MirrorSources != nil {
		config.MirrorSources = c.MirrorSources
	}
	if c.MaxChunkSize != nil {
		config.MaxChunkSize = *c.MaxChunkSize
	}
	if c.MaxUploadSize != nil {
		config.MaxUploadSize = *c.MaxUploadSize
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
