package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
primary:
  type: http
  base_url: https://example.test/api
  timeout: 4s
secondary:
  type: s3
  s3:
    bucket: progress-backups
queue:
  path: /var/lib/progress/queue.db
  max_attempts: 5
scheduler:
  interval: "@every 1m"
server:
  port: 9000
  cors_origins: ["https://game.example.test"]
logging:
  level: debug
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	require.Equal(t, StoreHTTP, cfg.Primary.Type)
	require.Equal(t, "https://example.test/api", cfg.Primary.BaseURL)
	require.Equal(t, 4*time.Second, cfg.Primary.Timeout)
	require.Equal(t, "/save.php", cfg.Primary.SavePath)
	require.Equal(t, StoreS3, cfg.Secondary.Type)
	require.Equal(t, "progress-backups", cfg.Secondary.S3.Bucket)
	require.Equal(t, "saves/", cfg.Secondary.S3.Prefix)
	require.Equal(t, 5, cfg.Queue.MaxAttempts)
	require.Equal(t, "offline_queue", cfg.Queue.Slot)
	require.Equal(t, "@every 1m", cfg.Scheduler.Interval)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, []string{"https://game.example.test"}, cfg.Server.CorsOrigins)
	require.Equal(t, 15*time.Second, cfg.Server.GetReadTimeout())
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Connectivity.AssumeOnline)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PROGRESS_SYNC_PRIMARY_BASE_URL", "https://override.test")
	t.Setenv("PROGRESS_SYNC_SECONDARY_TYPE", "memory")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.Equal(t, "https://override.test", cfg.Primary.BaseURL)
	require.Equal(t, StoreMemory, cfg.Secondary.Type)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PROGRESS_SYNC_PRIMARY_TYPE", "memory")
	t.Setenv("PROGRESS_SYNC_SECONDARY_TYPE", "memory")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Queue.MaxAttempts)
	require.Equal(t, 8089, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Primary:   PrimaryConfig{Type: StoreHTTP},
		Secondary: SecondaryConfig{Type: "ftp"},
		Queue:     QueueConfig{Slot: "q"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "primary.base_url")
	require.Contains(t, err.Error(), `unknown secondary.type "ftp"`)
	require.Contains(t, err.Error(), "queue.max_attempts")
}
