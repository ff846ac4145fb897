package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/domain"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultConfig(), cfg)
}

func TestProTierFromEnv(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{EnvTier: "PRO"}))
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.True(t, cfg.Detection.AsyncWorker)
}

func TestUnknownTier(t *testing.T) {
	_, err := FromEnv(env(map[string]string{EnvTier: "enterprise"}))
	assert.ErrorContains(t, err, "unknown tier")
}

func TestYAMLFile(t *testing.T) {
	path := writeFile(t, "harrier.yaml", `
tier: pro
server:
  port: 9090
repository:
  postgresHost: db.internal
detection:
  historyWindow: 12h
  collusionRadiusMeters: 50
media:
  type: s3
  bucket: field-photos
  duplicateTtl: 720h
`)

	cfg, err := FromEnv(env(map[string]string{EnvConfigFile: path}))
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset keys keep the preset")
	assert.Equal(t, "db.internal", cfg.Repository.PostgresHost)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, 12*time.Hour, cfg.Detection.HistoryWindow)
	assert.Equal(t, 50.0, cfg.Detection.CollusionRadiusMeters)
	assert.Equal(t, "field-photos", cfg.Media.Bucket)
	assert.Equal(t, 720*time.Hour, cfg.Media.DuplicateTTL)
}

func TestEnvTierBeatsFile(t *testing.T) {
	path := writeFile(t, "harrier.yaml", "tier: pro\n")

	cfg, err := FromEnv(env(map[string]string{EnvConfigFile: path, EnvTier: "community"}))
	require.NoError(t, err)
	assert.Equal(t, domain.TierCommunity, cfg.Tier)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
}

func TestYAMLUnknownKey(t *testing.T) {
	path := writeFile(t, "harrier.yaml", "server:\n  prot: 9090\n")

	_, err := FromEnv(env(map[string]string{EnvConfigFile: path}))
	assert.ErrorContains(t, err, "parse config file")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := FromEnv(env(map[string]string{EnvConfigFile: filepath.Join(t.TempDir(), "absent.yaml")}))
	assert.ErrorContains(t, err, "read config file")
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"HARRIER_PORT":                "7000",
		"HARRIER_SQLITE_PATH":         "/var/lib/harrier.db",
		"HARRIER_CACHE_TYPE":          "redis",
		"HARRIER_REDIS_ADDR":          "cache:6379",
		"HARRIER_NATS_QUEUE_GROUP":    "harrier-workers",
		"HARRIER_ASYNC_WORKER":        "true",
		"HARRIER_PERSISTENCE_TIMEOUT": "750ms",
		"HARRIER_LOG_FORMAT":          "text",
		EnvDebug:                      "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/var/lib/harrier.db", cfg.Repository.SQLitePath)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "cache:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "harrier-workers", cfg.EventBus.NATSQueueGroup)
	assert.True(t, cfg.Detection.AsyncWorker)
	assert.Equal(t, 750*time.Millisecond, cfg.Detection.PersistenceTimeout)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverrideErrors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"BadPort", map[string]string{"HARRIER_PORT": "eighty"}, "HARRIER_PORT"},
		{"PortOutOfRange", map[string]string{"HARRIER_PORT": "70000"}, "server.port"},
		{"BadBool", map[string]string{"HARRIER_ASYNC_WORKER": "sometimes"}, "HARRIER_ASYNC_WORKER"},
		{"BadDuration", map[string]string{"HARRIER_PERSISTENCE_TIMEOUT": "soon"}, "HARRIER_PERSISTENCE_TIMEOUT"},
		{"BadDriver", map[string]string{"HARRIER_DB_DRIVER": "mysql"}, "repository.driver"},
		{"S3WithoutBucket", map[string]string{"HARRIER_MEDIA_TYPE": "s3"}, "media.bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.vars))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadReadsDotenv(t *testing.T) {
	path := writeFile(t, "harrier.env", "HARRIER_PORT=6060\nHARRIER_LOG_LEVEL=warn\n")
	t.Setenv(EnvDotenvFile, path)
	// godotenv does not override variables that are already set.
	t.Setenv("HARRIER_LOG_LEVEL", "error")
	t.Cleanup(func() { os.Unsetenv("HARRIER_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.Port)
	assert.Equal(t, "error", cfg.Logging.Level)
}
