package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/flagx"
)

var knownFlags = []string{
	"-x", "-k", "-d", "-u", "-w", "-b", "-g", "-e",
	"-i", "-j", "-r", "-o", "-f", "-s", "-a", "-q", "-t", "-n", "-l", "-v",
}

// parseFlags populates Config fields from short command-line flags.
//
// Supported flags:
//
//	-x string   local cache key prefix
//	-k string   local cache driver ("sqlite" or "pgx")
//	-d string   local cache DSN
//	-u string   S3 root user
//	-w string   S3 root password
//	-b string   S3 bucket
//	-g string   S3 region
//	-e string   S3 base endpoint
//	-i string   backup OAuth client id
//	-j string   backup OAuth client secret
//	-r string   backup OAuth redirect URL
//	-o string   backup provider API base URL
//	-f string   backup root folder name
//	-s string   secret key
//	-a string   daemon HTTP address
//	-q string   daemon gRPC health address
//	-t int      backup interval (in minutes, 0 disables)
//	-n int      pull concurrency
//	-l string   log file (rotated)
//	-v string   log level
//
// Only these flags are taken from args (see flagx.FilterArgs), so cobra
// subcommands and their flags pass through untouched.
func parseFlags(cfg *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.AppPrefix, "x", cfg.AppPrefix, "local cache key prefix")
	fs.StringVar(&cfg.DatabaseDriver, "k", cfg.DatabaseDriver, "local cache driver (sqlite|pgx)")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "local cache DSN")
	fs.StringVar(&cfg.S3RootUser, "u", cfg.S3RootUser, "S3 root user")
	fs.StringVar(&cfg.S3RootPassword, "w", cfg.S3RootPassword, "S3 root password")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&cfg.BackupClientID, "i", cfg.BackupClientID, "backup OAuth client id")
	fs.StringVar(&cfg.BackupClientSecret, "j", cfg.BackupClientSecret, "backup OAuth client secret")
	fs.StringVar(&cfg.BackupRedirectURL, "r", cfg.BackupRedirectURL, "backup OAuth redirect URL")
	fs.StringVar(&cfg.BackupAPIBaseURL, "o", cfg.BackupAPIBaseURL, "backup provider API base URL")
	fs.StringVar(&cfg.BackupRootFolder, "f", cfg.BackupRootFolder, "backup root folder name")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "secret key")
	fs.StringVar(&cfg.HTTPAddr, "a", cfg.HTTPAddr, "daemon HTTP address")
	fs.StringVar(&cfg.GRPCAddr, "q", cfg.GRPCAddr, "daemon gRPC health address")
	backupInterval := fs.Int("t", int(cfg.BackupInterval.Minutes()), "backup interval (in minutes)")
	fs.IntVar(&cfg.PullConcurrency, "n", cfg.PullConcurrency, "pull concurrency")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		panic(err)
	}

	cfg.BackupInterval = time.Duration(*backupInterval) * time.Minute
}

// Flags lists every flag LoadConfig consumes, including -c/-config, so
// callers can hand the rest of the command line to another parser.
func Flags() []string {
	return append([]string{"-c", "-config"}, knownFlags...)
}
