package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chii/internal/remote"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, remote.DefaultBaseURL, cfg.APIURL)
	assert.Equal(t, 30, cfg.PageSize)
	assert.Equal(t, DefaultTimeout, cfg.Timeout.Duration)
	assert.True(t, strings.HasSuffix(cfg.DBPath, filepath.Join(".chii", "cache.db")), cfg.DBPath)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
db_path: /tmp/chii.db
username: sai
page_size: 50
timeout: 5s
log_level: debug
log_file: /tmp/chii.log
max_pages: 4096
`))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/chii.db", cfg.DBPath)
	assert.Equal(t, "sai", cfg.Username)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 5*time.Second, cfg.Timeout.Duration)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/chii.log", cfg.LogFile)
	assert.Equal(t, int64(4096), cfg.MaxPages)
	assert.Equal(t, remote.DefaultBaseURL, cfg.APIURL, "unset keys keep defaults")
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "colour: blue\n"},
		{"page size too large", "page_size: 500\n"},
		{"page size not int", "page_size: ten\n"},
		{"bad url", "api_url: ftp://example.com\n"},
		{"bad timeout", "timeout: soon\n"},
		{"bad level", "log_level: loud\n"},
		{"empty db path", "db_path: \"\"\n"},
		{"empty log file", "log_file: \"\"\n"},
		{"page cap too small", "max_pages: 8\n"},
		{"not yaml", "page_size: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]byte(tt.doc))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("username: file-user\napi_url: http://localhost:9000\n"), 0o600))

	t.Setenv(EnvUsername, "env-user")
	t.Setenv(EnvToken, "secret")
	t.Setenv(EnvDBPath, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.Username, "env wins over the file")
	assert.Equal(t, "http://localhost:9000", cfg.APIURL)
	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, DefaultDBPath(), cfg.DBPath, "empty env values are ignored")
	assert.Equal(t, "***", cfg.Redacted().Token)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "an explicit path must exist")

	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvConfig, "")
	cfg, err := Load("")
	require.NoError(t, err, "the default path may be absent")
	assert.Equal(t, DefaultListen, cfg.Listen)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: 0\n"), 0o600))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), path)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{EnvListen: " :9999 ", EnvAPIURL: "http://x"}
	cfg := Default()
	applyEnv(&cfg, func(k string) string { return env[k] })
	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, "http://x", cfg.APIURL)
}

func TestLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", Config{LogLevel: "debug"}.Level().String())
	assert.Equal(t, "INFO", Config{}.Level().String())
	assert.Equal(t, "ERROR", Config{LogLevel: "error"}.Level().String())
}

func TestDuration_JSON(t *testing.T) {
	data, err := json.Marshal(Duration{90 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var d Duration
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, 90*time.Second, d.Duration)
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
}
