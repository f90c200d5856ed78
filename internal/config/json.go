package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/carekeeper/internal/flagx"
	"github.com/dmitrijs2005/carekeeper/internal/timex"
)

// JsonConfig is a DTO used only for unmarshalling. Pointer fields tell
// "absent" apart from zero values so a partial file overlays defaults.
type JsonConfig struct {
	AppPrefix          *string         `json:"app_prefix"`
	DatabaseDriver     *string         `json:"database_driver"`
	DatabaseDSN        *string         `json:"database_dsn"`
	S3RootUser         *string         `json:"s3_root_user"`
	S3RootPassword     *string         `json:"s3_root_password"`
	S3Bucket           *string         `json:"s3_bucket"`
	S3Region           *string         `json:"s3_region"`
	S3BaseEndpoint     *string         `json:"s3_base_endpoint"`
	PresignTTL         *timex.Duration `json:"presign_ttl"`
	BackupClientID     *string         `json:"backup_client_id"`
	BackupClientSecret *string         `json:"backup_client_secret"`
	BackupAuthURL      *string         `json:"backup_auth_url"`
	BackupTokenURL     *string         `json:"backup_token_url"`
	BackupRedirectURL  *string         `json:"backup_redirect_url"`
	BackupAPIBaseURL   *string         `json:"backup_api_base_url"`
	BackupRootFolder   *string         `json:"backup_root_folder"`
	SecretKey          *string         `json:"secret_key"`
	HTTPAddr           *string         `json:"http_addr"`
	GRPCAddr           *string         `json:"grpc_addr"`
	BackupInterval     *timex.Duration `json:"backup_interval"`
	PullConcurrency    *int            `json:"pull_concurrency"`
	LogFile            *string         `json:"log_file"`
	LogLevel           *string         `json:"log_level"`
}

// parseJson overlays cfg with the JSON file named by -c/-config.
// It panics on read or unmarshal errors.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.AppPrefix, jc.AppPrefix)
	setString(&cfg.DatabaseDriver, jc.DatabaseDriver)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.S3RootUser, jc.S3RootUser)
	setString(&cfg.S3RootPassword, jc.S3RootPassword)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.BackupClientID, jc.BackupClientID)
	setString(&cfg.BackupClientSecret, jc.BackupClientSecret)
	setString(&cfg.BackupAuthURL, jc.BackupAuthURL)
	setString(&cfg.BackupTokenURL, jc.BackupTokenURL)
	setString(&cfg.BackupRedirectURL, jc.BackupRedirectURL)
	setString(&cfg.BackupAPIBaseURL, jc.BackupAPIBaseURL)
	setString(&cfg.BackupRootFolder, jc.BackupRootFolder)
	setString(&cfg.SecretKey, jc.SecretKey)
	setString(&cfg.HTTPAddr, jc.HTTPAddr)
	setString(&cfg.GRPCAddr, jc.GRPCAddr)
	setString(&cfg.LogFile, jc.LogFile)
	setString(&cfg.LogLevel, jc.LogLevel)

	if jc.PresignTTL != nil {
		cfg.PresignTTL = jc.PresignTTL.Duration
	}
	if jc.BackupInterval != nil {
		cfg.BackupInterval = jc.BackupInterval.Duration
	}
	if jc.PullConcurrency != nil {
		cfg.PullConcurrency = *jc.PullConcurrency
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
