package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, name := range []string{"APP_NAME", "IDLE_TIMEOUT", "IDENTITY_BACKEND", "STORE_BACKEND", "REDIRECT_ADDR", "REDIRECT_URL", "FOLDER", "SESSION_STORE"} {
		t.Setenv(name, "")
	}
	c := config.New()

	require.Equal(t, "Auth Client", c.GetAppName())
	require.Equal(t, 30*time.Second, c.GetIdleTimeout())
	require.Equal(t, config.IdentityBackendInMemory, c.GetIdentityBackend())
	require.Equal(t, config.StoreBackendInMemory, c.GetStoreBackend())
	require.Equal(t, "127.0.0.1:8765", c.GetRedirectAddr())
	require.Equal(t, "http://127.0.0.1:8765/callback", c.GetRedirectURL())
	require.Equal(t, filepath.Join("./data", "session.db"), c.GetSessionStorePath())
}

func TestIdleTimeout(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"45s", 45 * time.Second},
		{"2m", 2 * time.Minute},
		{"soon", 30 * time.Second},
		{"-5s", 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("IDLE_TIMEOUT", tt.value)
			require.Equal(t, tt.want, config.New().GetIdleTimeout())
		})
	}
}

func TestLoad_ReadsDotEnvWithoutOverriding(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GITHUB_CLIENT_ID=from-file\nAPP_NAME=from-file\n"), 0o600))
	t.Setenv("APP_NAME", "from-env")
	t.Setenv("GITHUB_CLIENT_ID", "")
	require.NoError(t, os.Unsetenv("GITHUB_CLIENT_ID"))

	require.NoError(t, config.Load(path))

	c := config.New()
	require.Equal(t, "from-file", c.GetGitHubClientID())
	require.Equal(t, "from-env", c.GetAppName())
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	require.NoError(t, config.Load(filepath.Join(t.TempDir(), "absent.env")))
	require.NoError(t, config.Load(""))
}
