package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := load("", map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, "access_token", cfg.Cookie.AccessName)
	assert.True(t, cfg.Registration.Enabled)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "authcore.yaml", `
env: prod
server:
  addr: ":9000"
token:
  access_ttl: 5m
  leeway: 10s
registration:
  enabled: false
cookie:
  cross_origin: true
google:
  client_ids: ["web", "ios"]
`)

	cfg, err := load(path, map[string]string{
		"AUTHCORE_SERVER_ADDR":          ":9100",
		"AUTHCORE_SESSION_MAX_PER_USER": "3",
		"AUTHCORE_GOOGLE_CLIENT_IDS":    "a,b,c",
		"AUTHCORE_TOKEN_KEY_ID":         "2024-03",
	})
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, ":9100", cfg.Server.Addr, "env wins over file")
	assert.Equal(t, 5*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, 10*time.Second, cfg.Token.Leeway)
	assert.Equal(t, "2024-03", cfg.Token.KeyID)
	assert.False(t, cfg.Registration.Enabled)
	assert.True(t, cfg.Cookie.CrossOrigin)
	assert.Equal(t, 3, cfg.Session.MaxPerUser)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Google.ClientIDs)
	// untouched keys keep defaults
	assert.Equal(t, "refresh_token", cfg.Cookie.RefreshName)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := load(filepath.Join(dir, "missing.yaml"), map[string]string{})
	require.Error(t, err)

	bad := writeFile(t, dir, "bad.yaml", "server: [")
	_, err = load(bad, map[string]string{})
	require.Error(t, err)

	_, err = load("", map[string]string{"AUTHCORE_STORAGE_DRIVER": "mongo"})
	require.ErrorContains(t, err, "unknown storage driver")

	_, err = load("", map[string]string{"AUTHCORE_STORAGE_DRIVER": "postgres"})
	require.ErrorContains(t, err, "storage.dsn")

	_, err = load("", map[string]string{"AUTHCORE_STORAGE_DRIVER": "redis"})
	require.ErrorContains(t, err, "redis.addr")

	_, err = load("", map[string]string{"AUTHCORE_AUDIT_SINK": "kafka"})
	require.ErrorContains(t, err, "audit sink")

	_, err = load("", map[string]string{"AUTHCORE_TOKEN_ACCESS_TTL": "soon"})
	require.Error(t, err)
}

func TestEngineConfigFromFiles(t *testing.T) {
	priv, pub, err := token.GenerateKeyPair()
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := Default()
	cfg.Keys.PrivateKeyFile = writeFile(t, dir, "private.pem", string(priv))
	cfg.Keys.PublicKeyPEM = string(pub)
	cfg.Keys.RefreshSecret = strings.Repeat("r", 32)
	cfg.Keys.CSRFSecret = strings.Repeat("c", 32)
	cfg.Session.MaxPerUser = 2
	cfg.Audit.Sink = "none"
	cfg.Token.Leeway = 15 * time.Second
	cfg.Token.KeyID = "primary"

	ec, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, ec.Token.Leeway)
	assert.Equal(t, "primary", ec.Token.KeyID)

	assert.Equal(t, priv, ec.Token.PrivateKey)
	assert.Equal(t, pub, ec.Token.PublicKey)
	assert.Equal(t, 2, ec.Session.MaxPerUser)
	assert.False(t, ec.Audit.Enabled)
	assert.Equal(t, cfg.Security.LoginCooldown, ec.Security.LoginCooldownDuration)
}

func TestEngineConfigRequiresKeys(t *testing.T) {
	cfg := Default()
	_, err := cfg.Engine()
	require.ErrorContains(t, err, "private key")

	priv, pub, err := token.GenerateKeyPair()
	require.NoError(t, err)
	cfg.Keys.PrivateKeyPEM = string(priv)
	cfg.Keys.PublicKeyPEM = string(pub)
	cfg.Keys.RefreshSecret = "short"
	_, err = cfg.Engine()
	require.Error(t, err)

	cfg.Keys.RefreshSecret = strings.Repeat("r", 32)
	cfg.Token.Leeway = 5 * time.Minute
	_, err = cfg.Engine()
	require.ErrorContains(t, err, "Leeway")
}
