package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/bulletinkeeper/internal/flagx"
	"github.com/dmitrijs2005/bulletinkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer fields
// tell a missing key apart from an empty one, so only keys present in the
// file override the current values.
type JsonConfig struct {
	ServerEndpointAddr  *string         `json:"server_endpoint_addr"`
	ServerPublicKey     *string         `json:"server_public_key"`
	DatabaseDSN         *string         `json:"database_dsn"`
	KeyPairFile         *string         `json:"key_pair_file"`
	HQPublicKey         *string         `json:"hq_public_key"`
	LogFile             *string         `json:"log_file"`
	ExportDir           *string         `json:"export_dir"`
	ChunkSize           *int            `json:"chunk_size"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
}

// parseJson overlays Config with values loaded from the file named by -c or
// -config. Read and unmarshal errors panic.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	for dst, v := range map[*string]*string{
		&cfg.ServerEndpointAddr: jc.ServerEndpointAddr,
		&cfg.ServerPublicKey:    jc.ServerPublicKey,
		&cfg.DatabaseDSN:        jc.DatabaseDSN,
		&cfg.KeyPairFile:        jc.KeyPairFile,
		&cfg.HQPublicKey:        jc.HQPublicKey,
		&cfg.LogFile:            jc.LogFile,
		&cfg.ExportDir:          jc.ExportDir,
	} {
		if v != nil {
			*dst = *v
		}
	}
	if jc.ChunkSize != nil {
		cfg.ChunkSize = *jc.ChunkSize
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
}
