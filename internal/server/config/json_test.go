package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_grpc":      "www.example:9000",
		"storage_backend":         "s3",
		"database_dsn":            "bulletins.db",
		"s3_access_key":           "user",
		"s3_secret_key":           "password",
		"s3_bucket":               "bucket",
		"s3_region":               "region",
		"s3_base_endpoint":        "base_endpoint",
		"magic_word":              "open sesame",
		"mirrors_who_call_us_dir": "/etc/mirrors",
		"mirror_sources":          []string{"peer:50051"},
		"mirror_pull_interval":    "1m",
		"max_chunk_size":          4096,
		"staging_ttl":             "3h",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrGRPC)
		assert.Equal(t, StorageS3, cfg.StorageBackend)
		assert.Equal(t, "bulletins.db", cfg.DatabaseDSN)
		assert.Equal(t, "user", cfg.S3AccessKey)
		assert.Equal(t, "password", cfg.S3SecretKey)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "region", cfg.S3Region)
		assert.Equal(t, "base_endpoint", cfg.S3BaseEndpoint)
		assert.Equal(t, "open sesame", cfg.MagicWord)
		assert.Equal(t, "/etc/mirrors", cfg.MirrorsWhoCallUsDir)
		assert.Equal(t, []string{"peer:50051"}, cfg.MirrorSources)
		assert.Equal(t, 1*time.Minute, cfg.MirrorPullInterval)
		assert.Equal(t, 4096, cfg.MaxChunkSize)
		assert.Equal(t, 3*time.Hour, cfg.StagingTTL)
	})

	t.Run("missing keys keep current values", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, ":9090", cfg.MetricsAddr)
		assert.Equal(t, "server.keypair", cfg.KeyPairFile)
		assert.Equal(t, int64(64<<20), cfg.MaxUploadSize)
		assert.Equal(t, 24*time.Hour, cfg.ServerInfoTTL)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			EndpointAddrGRPC:   "defaults:1234",
			DatabaseDSN:        "bulletins.db",
			MagicWord:          "word",
			MirrorPullInterval: 2 * time.Minute,
			S3Bucket:           "s3bucket",
		}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrGRPC)
		assert.Equal(t, "bulletins.db", cfg.DatabaseDSN)
		assert.Equal(t, "word", cfg.MagicWord)
		assert.Equal(t, 2*time.Minute, cfg.MirrorPullInterval)
		assert.Equal(t, "s3bucket", cfg.S3Bucket)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "absent.json")}

		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
