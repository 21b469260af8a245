package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8081, cfg.Server.AdminPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 50, cfg.Server.RateLimitRPS)

	assert.Equal(t, 4, cfg.Board.SecondaryCount)
	assert.Equal(t, 65536, cfg.Board.MaxConcurrentTasks)
	assert.Equal(t, 10*time.Second, cfg.Board.WatchdogProgressTimeout)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, 100, cfg.Redis.PoolSize)
	assert.Equal(t, 10, cfg.Redis.MinIdleConns)
	assert.Equal(t, 3, cfg.Redis.MaxRetries)

	assert.Equal(t, "tboard:remote:outbound", cfg.Remote.OutboundStream)
	assert.Equal(t, "tboard:remote:inbound", cfg.Remote.InboundStream)
	assert.Equal(t, "tboard", cfg.Remote.ConsumerGroup)
	assert.Equal(t, 16, cfg.Remote.Concurrency)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	assert.False(t, cfg.Auth.Enabled)

	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := tmpDir + "/config.yaml"

	configContent := `
server:
  host: "127.0.0.1"
  port: 9090

board:
  secondarycount: 8

redis:
  addr: "custom-redis:6380"
  password: "secret"
  db: 1

loglevel: "warn"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	originalDir, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Board.SecondaryCount)
	assert.Equal(t, "custom-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestBoardConfig_Fields(t *testing.T) {
	cfg := BoardConfig{
		SecondaryCount:          6,
		MaxConcurrentTasks:      1000,
		WatchdogProgressTimeout: 5 * time.Second,
	}

	assert.Equal(t, 6, cfg.SecondaryCount)
	assert.Equal(t, 1000, cfg.MaxConcurrentTasks)
}

func TestRedisConfig_Fields(t *testing.T) {
	cfg := RedisConfig{
		Addr:         "redis:6379",
		Password:     "pass",
		DB:           1,
		PoolSize:     50,
		MinIdleConns: 5,
		MaxRetries:   5,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	assert.Equal(t, "redis:6379", cfg.Addr)
	assert.Equal(t, "pass", cfg.Password)
	assert.Equal(t, 1, cfg.DB)
}

func TestRemoteConfig_Fields(t *testing.T) {
	cfg := RemoteConfig{
		OutboundStream: "out",
		InboundStream:  "in",
		ConsumerGroup:  "grp",
		Consumer:       "c1",
		BlockTimeout:   time.Second,
	}

	assert.Equal(t, "out", cfg.OutboundStream)
	assert.Equal(t, "grp", cfg.ConsumerGroup)
}
