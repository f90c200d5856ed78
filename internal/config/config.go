// Package config handles configuration for CareKeeper: built-in defaults,
// an optional JSON overlay and command-line flags, applied in that order.
package config

import (
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/common"
)

// Config holds runtime settings.
//
// Fields:
//   - AppPrefix: namespace of local cache keys ("<prefix>-<type>-records-<owner>").
//   - DatabaseDriver / DatabaseDSN: local cache backend, "sqlite" (modernc) or "pgx".
//   - S3*: primary object store (S3-compatible, MinIO in development).
//   - PresignTTL: lifetime of signed download URLs.
//   - Backup*: OAuth2 client and REST endpoint of the secondary backup provider.
//   - SecretKey: signs OAuth state tokens and encrypts the stored provider token.
//   - HTTPAddr / GRPCAddr: daemon endpoints (OAuth callback + metrics / health).
//   - BackupInterval: period of the daemon's full backup, 0 disables it.
//   - PullConcurrency: max parallel owner×type pulls.
type Config struct {
	AppPrefix          string
	DatabaseDriver     string
	DatabaseDSN        string
	S3RootUser         string
	S3RootPassword     string
	S3Bucket           string
	S3Region           string
	S3BaseEndpoint     string
	PresignTTL         time.Duration
	BackupClientID     string
	BackupClientSecret string
	BackupAuthURL      string
	BackupTokenURL     string
	BackupRedirectURL  string
	BackupAPIBaseURL   string
	BackupRootFolder   string
	SecretKey          string
	HTTPAddr           string
	GRPCAddr           string
	BackupInterval     time.Duration
	PullConcurrency    int
	LogFile            string
	LogLevel           string
}

// LoadDefaults populates Config with development defaults.
// NOTE: the secret and S3 credentials are insecure and must be overridden in production.
func (c *Config) LoadDefaults() {
	c.AppPrefix = common.DefaultAppPrefix
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = "carekeeper.db"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "carekeeper"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.PresignTTL = 15 * time.Minute
	c.BackupAuthURL = "https://accounts.google.com/o/oauth2/auth"
	c.BackupTokenURL = "https://oauth2.googleapis.com/token"
	c.BackupRedirectURL = "http://127.0.0.1:8080/oauth/callback"
	c.BackupAPIBaseURL = "https://www.googleapis.com"
	c.BackupRootFolder = common.DefaultBackupRootFolder
	c.SecretKey = "secretKey"
	c.HTTPAddr = ":8080"
	c.GRPCAddr = ":50051"
	c.BackupInterval = time.Hour
	c.PullConcurrency = 4
	c.LogLevel = "info"
}

// LoadConfig builds a Config from defaults, then the JSON file named by
// -c/-config in args, then flags in args.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
