package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"localhost:9042"}, cfg.Cassandra.Hosts)
	assert.Equal(t, "elmchat", cfg.Cassandra.Keyspace)
	assert.Equal(t, "memory", cfg.Membership.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, 7*24*time.Hour, cfg.Storage.AvatarURLTTL)
	assert.Equal(t, 256, cfg.Storage.AvatarSize)
	assert.False(t, cfg.Mail.Enabled)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "elmchat:room:events", cfg.Events.Channel)
	assert.Equal(t, 256, cfg.Events.Buffer)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
server:
  port: 9000
  write_timeout: 3s
cassandra:
  hosts:
    - cass-1:9042
    - cass-2:9042
  keyspace: chat_test
membership:
  backend: redis
`), 0o644))

	t.Setenv("CASSANDRA_HOSTS", "a:9042, b:9042")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("PEPPER_STRING", "pepper")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"a:9042", "b:9042"}, cfg.Cassandra.Hosts)
	assert.Equal(t, "chat_test", cfg.Cassandra.Keyspace)
	assert.Equal(t, "redis", cfg.Membership.Backend)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "pepper", cfg.Auth.Pepper)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}
