package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sample = `
APP_ENV: staging
DATABASE:
  TYPE: sqlite
  DBNAME: postflow.db
OAUTH:
  CLIENTS:
    facebook:
      CLIENT_ID: fb-app
      CLIENT_SECRET: fb-secret
      SCOPES: [pages_manage_posts, pages_read_engagement]
    twitter:
      CLIENT_SECRET: no-id
WEBHOOK:
  SECRETS:
    facebook:
      APP_SECRET: hook-secret
      VERIFY_TOKEN: hook-verify
PUBLISHER:
  MAX_ATTEMPTS: 5
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(sample), 0o600))
	t.Chdir(dir)
	t.Setenv("PUBLISHER_CALL_TIMEOUT", "7s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "staging", cfg.AppEnv)
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, 5, cfg.Publisher.MaxAttempts)
	require.Equal(t, 7*time.Second, cfg.Publisher.CallTimeout)
	require.Equal(t, 2*time.Minute, cfg.Publisher.PassTimeout)
	require.Equal(t, 15*time.Minute, cfg.OAuth.PendingTTL)

	fb, ok := cfg.OAuthClient("Facebook")
	require.True(t, ok)
	require.Equal(t, "fb-app", fb.ClientID)
	require.Len(t, fb.Scopes, 2)

	_, ok = cfg.OAuthClient("twitter")
	require.False(t, ok, "a client without an id is not configured")

	secret, ok := cfg.WebhookSecret("facebook")
	require.True(t, ok)
	require.Equal(t, "hook-verify", secret.VerifyToken)
}
