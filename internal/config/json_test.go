package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	t.Run("partial file overlays defaults", func(t *testing.T) {
		path := writeTempFile(t, "cfg.json", `{
			"s3_bucket": "family",
			"backup_interval": "10m",
			"presign_ttl": 60000000000,
			"pull_concurrency": 2
		}`)

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg, []string{"-c", path})

		assert.Equal(t, "family", cfg.S3Bucket)
		assert.Equal(t, 10*time.Minute, cfg.BackupInterval)
		assert.Equal(t, time.Minute, cfg.PresignTTL)
		assert.Equal(t, 2, cfg.PullConcurrency)
		assert.Equal(t, "us-east-1", cfg.S3Region, "untouched fields keep defaults")
	})

	t.Run("no config flag leaves cfg alone", func(t *testing.T) {
		cfg := &Config{S3Bucket: "keep"}
		parseJson(cfg, []string{"pull"})
		assert.Equal(t, "keep", cfg.S3Bucket)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		path := writeTempFile(t, "bad.json", `{ nope`)
		require.Panics(t, func() { parseJson(&Config{}, []string{"-config", path}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		require.Panics(t, func() { parseJson(&Config{}, []string{"-c", "/does/not/exist.json"}) })
	})
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	path := writeTempFile(t, "cfg.json", `{"s3_bucket": "from-json", "s3_region": "eu-north-1"}`)

	cfg := LoadConfig([]string{"-c", path, "-b", "from-flag"})

	assert.Equal(t, "from-flag", cfg.S3Bucket)
	assert.Equal(t, "eu-north-1", cfg.S3Region)
}
