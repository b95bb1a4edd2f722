package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("QUIZ_JWT_SECRET", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 5m
game:
  join_timeout: 20s
  early_advance: true
auth:
  jwt_secret: ${QUIZ_JWT_SECRET}
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 20*time.Second, Duration(cfg.Game.JoinTimeout, 30*time.Second))
	require.Equal(t, 12*time.Second, Duration(cfg.Game.AnswerWindow, 12*time.Second))
	require.True(t, cfg.Game.EarlyAdvance)
	require.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel())
	require.Equal(t, "quiz.events", cfg.RabbitExchange())
	require.Equal(t, "https://the-trivia-api.com/api", cfg.ProviderURL())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDuration(t *testing.T) {
	require.Equal(t, time.Minute, Duration("", time.Minute))
	require.Equal(t, time.Minute, Duration("soon", time.Minute))
	require.Equal(t, 3*time.Second, Duration("3s", time.Minute))
}
