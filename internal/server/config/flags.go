package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-m string   metrics bind address
//	-l string   log file
//	-s string   storage backend: postgres, s3 or memory
//	-d string   PostgreSQL DSN
//	-u string   S3 access key
//	-p string   S3 secret key
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-k string   server key pair file
//	-w string   upload magic word
//	-x string   directory of mirror key files
//	-r string   comma separated mirror source addresses
//	-i int      mirror pull interval, minutes
//	-t string   upload staging directory
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-m", "-l", "-s", "-d", "-u", "-p", "-b", "-g", "-e", "-k", "-w", "-x", "-r", "-i", "-t",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "metrics address")
	fs.StringVar(&config.LogFile, "l", config.LogFile, "log file")
	fs.StringVar(&config.StorageBackend, "s", config.StorageBackend, "storage backend")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.KeyPairFile, "k", config.KeyPairFile, "server key pair file")
	fs.StringVar(&config.MagicWord, "w", config.MagicWord, "upload magic word")
	fs.StringVar(&config.MirrorsWhoCallUsDir, "x", config.MirrorsWhoCallUsDir, "mirror key directory")
	fs.StringVar(&config.StagingDir, "t", config.StagingDir, "upload staging directory")

	sources := fs.String("r", strings.Join(config.MirrorSources, ","), "mirror sources")
	pullInterval := fs.Int("i", int(config.MirrorPullInterval.Minutes()), "mirror pull interval (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.MirrorSources = flagx.SplitList(*sources)
	config.MirrorPullInterval = time.Duration(*pullInterval) * time.Minute
}
