// Package config loads runtime configuration for the bulletin client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. BULLETIN_CLIENT_* environment variables (see parseEnv).
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the bulletin server
//	-k string   server public key (pins GetServerInfo replies)
//	-d string   SQLite DSN of the local bulletin store
//	-f string   key pair file
//	-q string   headquarters public key for new bulletins
//	-l string   log file
//	-x string   export directory
//	-s int      upload chunk size, bytes
//	-i int      online status check interval (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "server_public_key": "...",
//	  "database_dsn": "bulletins.db",
//	  "key_pair_file": "client.keypair",
//	  "chunk_size": 102400,
//	  "online_check_interval": "3s"
//	}
package config
