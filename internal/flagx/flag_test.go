package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "short flag with separate value",
			args:         []string{"-c", "conf.json", "-x", "localhost"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c", "conf.json"},
		},
		{
			name:         "flag with equals",
			args:         []string{"-b=bucket", "--owner", "42"},
			allowedFlags: []string{"-b"},
			want:         []string{"-b=bucket"},
		},
		{
			name:         "unknown flags and positionals ignored",
			args:         []string{"migrate", "run", "--owner", "7", "-d", "vault.db"},
			allowedFlags: []string{"-d"},
			want:         []string{"-d", "vault.db"},
		},
		{
			name:         "flag without value at end is kept",
			args:         []string{"-c"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c"},
		},
		{
			name:         "next dash token is not a value",
			args:         []string{"-c", "-d=x.db"},
			allowedFlags: []string{"-c", "-d"},
			want:         []string{"-c", "-d=x.db"},
		},
		{
			name:         "empty args",
			args:         []string{},
			allowedFlags: []string{"-c"},
			want:         []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowedFlags))
		})
	}
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "/path/short.json", ConfigPath([]string{"-c", "/path/short.json"}))
	assert.Equal(t, "/path/long.json", ConfigPath([]string{"backup", "sync", "-config", "/path/long.json"}))
	assert.Empty(t, ConfigPath([]string{"-x", "1"}))
	assert.Equal(t, "/path/2.json", ConfigPath([]string{"-c", "/path/1.json", "-config", "/path/2.json"}))
}

func TestStripArgs(t *testing.T) {
	args := []string{"-d", "family.db", "backup", "restore", "--out", "snap.json", "-v=debug", "--apply"}

	assert.Equal(t, []string{"backup", "restore", "--out", "snap.json", "--apply"}, StripArgs(args, []string{"-d", "-v"}))
	assert.Equal(t, []string{"-d", "family.db", "-v=debug"}, FilterArgs(args, []string{"-d", "-v"}))
	assert.Equal(t, []string{}, StripArgs([]string{"-c", "conf.json"}, []string{"-c"}))
}
