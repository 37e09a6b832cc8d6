package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
// Only the flags listed in the package documentation are considered; the
// rest of os.Args belongs to the command line parser of the CLI.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-k", "-d", "-f", "-q", "-l", "-x", "-s", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.ServerPublicKey, "k", cfg.ServerPublicKey, "server public key")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "local database DSN")
	fs.StringVar(&cfg.KeyPairFile, "f", cfg.KeyPairFile, "key pair file")
	fs.StringVar(&cfg.HQPublicKey, "q", cfg.HQPublicKey, "headquarters public key")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")
	fs.StringVar(&cfg.ExportDir, "x", cfg.ExportDir, "export directory")
	fs.IntVar(&cfg.ChunkSize, "s", cfg.ChunkSize, "upload chunk size (in bytes)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
