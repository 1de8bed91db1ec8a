package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL)
	assert.Equal(t, SessionMemory, cfg.Session.Backend)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestApplyEnv_Overrides(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, mapLookup(map[string]string{
		"PORT":           "9090",
		"DIRECTORY_MODE": "http",
		"DIRECTORY_URL":  "https://panel.example.com",
		"CACHE_TTL":      "120",
		"SWEEP_INTERVAL": "30s",
		"ADMIN_IDS":      " 1, 2 ,,3",

		"WS_ALLOWED_ORIGINS": "console.example.com, *.ops.example.com",
	}))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DirectoryHTTP, cfg.Directory.Mode)
	assert.Equal(t, 120*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 30*time.Second, cfg.Cache.SweepInterval)
	assert.Equal(t, []string{"1", "2", "3"}, cfg.AdminIDs)
	assert.Equal(t, []string{"console.example.com", "*.ops.example.com"}, cfg.AllowedOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_BadDuration(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, mapLookup(map[string]string{"CACHE_TTL": "soon"}))
	assert.ErrorContains(t, err, "CACHE_TTL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"http without url", func(c *Config) { c.Directory.Mode = DirectoryHTTP }, "directory url"},
		{"unknown directory", func(c *Config) { c.Directory.Mode = "ldap" }, "unknown directory mode"},
		{"redis without addr", func(c *Config) { c.Session.Backend = SessionRedis }, "REDIS_ADDR"},
		{"sqlite without dsn", func(c *Config) { c.Session.Backend = SessionSQLite }, "DATABASE_URL"},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }, "ttl"},
		{"bad port", func(c *Config) { c.Port = 0 }, "port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "desk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7070
directory:
  mode: http
  url: https://panel.example.com
session:
  backend: memory
admin_ids: ["42"]
`), 0o600))
	t.Setenv("ACCOUNTDESK_CONFIG", path)

	cfg, err := Load(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "https://panel.example.com", cfg.Directory.URL)
	assert.Equal(t, []string{"42"}, cfg.AdminIDs)
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("OPERATOR_IDS=7,8\n"), 0o600))
	t.Setenv("ACCOUNTDESK_CONFIG", "")
	t.Setenv("OPERATOR_IDS", "")
	os.Unsetenv("OPERATOR_IDS")

	cfg, err := Load(envPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "8"}, cfg.OperatorIDs)
}
