package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notistore/internal/auth"
	"github.com/charlesng35/notistore/internal/database"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.CORS.AllowedOrigins)
	require.True(t, cfg.Server.RateLimit.Enabled)
	require.Equal(t, 50, cfg.Server.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Server.RateLimit.Window)
	require.Equal(t, "memory", cfg.Server.RateLimit.Store)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, 20, cfg.Database.MaxOpenConns)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "identity.example.com", cfg.Auth.JWT.Issuer)
	require.Equal(t, "notistore", cfg.Auth.JWT.Audience)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.Equal(t, 10, cfg.Notifications.Delivery.RatePerMinute)
	require.Equal(t, 5, cfg.Notifications.Delivery.Burst)
	require.Equal(t, 7, cfg.Notifications.Retention.SoftDeletedDays)
	require.Equal(t, "@hourly", cfg.Notifications.Retention.Schedule)
	require.Equal(t, 500, cfg.Notifications.Retention.BatchSize)
	require.Equal(t, 25, cfg.Notifications.List.DefaultLimit)
	require.Equal(t, 50, cfg.Notifications.List.MaxLimit)

	require.True(t, cfg.Realtime.WebSocket.Enabled)
	require.Equal(t, 64, cfg.Realtime.WebSocket.BufferSize)
	require.True(t, cfg.Realtime.SNS.Enabled)
	require.Equal(t, "eu-west-1", cfg.Realtime.SNS.Region)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.True(t, cfg.Monitoring.Health.Enabled)
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	chdirForTest(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/notistore.sqlite", cfg.Database.Path)
	require.Equal(t, 30, cfg.Notifications.Retention.SoftDeletedDays)
	require.Equal(t, 60, cfg.Notifications.Delivery.RatePerMinute)
	require.False(t, cfg.Realtime.SNS.Enabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	chdirForTest(t, t.TempDir())
	t.Setenv("NOTISTORE_SERVER_PORT", "7070")
	t.Setenv("NOTISTORE_NOTIFICATIONS_RETENTION_SOFT_DELETED_DAYS", "0")
	t.Setenv("NOTISTORE_AUTH_JWT_SECRET", "from-env")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Zero(t, cfg.Notifications.Retention.SoftDeletedDays)
	require.Equal(t, "from-env", cfg.Auth.JWT.Secret)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{Secret: "s", Issuer: "iss", Audience: "aud"}}

	jwtCfg := cfg.JWTServiceConfig()
	require.Equal(t, "s", jwtCfg.Secret)
	require.Equal(t, "iss", jwtCfg.Issuer)
	require.Equal(t, "aud", jwtCfg.Audience)
	require.Equal(t, auth.DefaultAccessTokenTTL, jwtCfg.AccessTokenTTL)
}

func TestDatabaseConnectionConfig(t *testing.T) {
	cfg := DatabaseConfig{
		Driver:   "mysql",
		Postgres: DBAuthConfig{Host: "pg"},
		MySQL:    DBAuthConfig{Host: "my", Port: 3306, Database: "n", Username: "u", Password: "p"},
	}

	conn := cfg.ConnectionConfig()
	require.Equal(t, "my", conn.Host)
	require.Equal(t, "n", conn.Name)
	require.Equal(t, "u", conn.User)

	cfg.Driver = "sqlite"
	cfg.Path = "/tmp/x.sqlite"
	conn = cfg.ConnectionConfig()
	require.Equal(t, database.Config{Driver: "sqlite", Path: "/tmp/x.sqlite"}, conn)
}

func TestRealtimeAdapters(t *testing.T) {
	ws := WebSocketConfig{BufferSize: 8, AllowedOrigins: []string{"https://a"}}
	require.Equal(t, 8, ws.HubOptions().BufferSize)

	sns := SNSConfig{Region: "us-east-1", TopicARN: "arn"}
	pub := sns.PublisherConfig()
	require.Equal(t, "us-east-1", pub.Region)
	require.Equal(t, "arn", pub.TopicARN)
}

// chdirForTest mirrors testing.T.Chdir (Go 1.24) for older toolchains.
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
