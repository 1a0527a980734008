package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

// TestLoad_Defaults tests the fallback values with only the required key set
func TestLoad_Defaults(t *testing.T) {
	resetViper(t)
	t.Setenv("SVCGATE_API_URL", "https://auth.example.com/token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com/token", cfg.APIURL)
	assert.Equal(t, "svcgate", cfg.AppName)
	assert.Empty(t, cfg.Token)
	assert.False(t, cfg.Debug)
	assert.True(t, cfg.Server.Bundled)
	assert.Equal(t, 10, cfg.Server.MaxRestarts)
	assert.Equal(t, time.Second, cfg.Server.RestartDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.Health.Interval)
	assert.Zero(t, cfg.Health.Timeout)
	assert.Empty(t, cfg.Health.URLs)
}

// TestLoad_WithEnvironmentVariables tests that SVCGATE_ prefixed environment variables work
func TestLoad_WithEnvironmentVariables(t *testing.T) {
	resetViper(t)
	t.Setenv("SVCGATE_TOKEN", "env-bearer")
	t.Setenv("SVCGATE_API_URL", "http://env:9090/token")
	t.Setenv("SVCGATE_DEBUG", "true")
	t.Setenv("SVCGATE_SERVER_PORT", "4100")
	t.Setenv("SVCGATE_SERVER_DEV", "true")
	t.Setenv("SVCGATE_SERVER_MAX_RESTARTS", "3")
	t.Setenv("SVCGATE_HEALTH_URLS", "http://localhost:4100/health, http://localhost:4101/health")
	t.Setenv("SVCGATE_HEALTH_INTERVAL", "1s")
	t.Setenv("SVCGATE_AUTHORIZATION_EXPRESSION", "isLdapEnabled == true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-bearer", cfg.Token)
	assert.Equal(t, "http://env:9090/token", cfg.APIURL)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 4100, cfg.Server.Port)
	assert.True(t, cfg.Server.Dev)
	assert.Equal(t, 3, cfg.Server.MaxRestarts)
	assert.Equal(t, []string{"http://localhost:4100/health", "http://localhost:4101/health"}, cfg.Health.URLs)
	assert.Equal(t, time.Second, cfg.Health.Interval)
	assert.Equal(t, "isLdapEnabled == true", cfg.AccessExpression)
}

// TestLoad_WithConfigFile tests config file loading
func TestLoad_WithConfigFile(t *testing.T) {
	resetViper(t)
	configPath := filepath.Join(t.TempDir(), "svcgate.yaml")
	configContent := `
api_url: "https://file.example.com/token"
app_name: "file-app"
server:
  path: "/opt/app/server.js"
  interpreter: "node"
  bundled: false
  offline: true
  restart_delay: "2s"
health:
  urls:
    - "http://localhost:3000/health"
  username: "svc"
  password: "s3cret"
  timeout: "30s"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	viper.SetConfigFile(configPath)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com/token", cfg.APIURL)
	assert.Equal(t, "file-app", cfg.AppName)
	assert.Equal(t, "/opt/app/server.js", cfg.Server.Path)
	assert.Equal(t, "node", cfg.Server.Interpreter)
	assert.False(t, cfg.Server.Bundled)
	assert.True(t, cfg.Server.Offline)
	assert.Equal(t, 2*time.Second, cfg.Server.RestartDelay)
	assert.Equal(t, []string{"http://localhost:3000/health"}, cfg.Health.URLs)
	assert.Equal(t, "svc", cfg.Health.Username)
	assert.Equal(t, "s3cret", cfg.Health.Password)
	assert.Equal(t, 30*time.Second, cfg.Health.Timeout)
}

// TestLoad_EnvOverridesFile tests that environment variables win over the config file
func TestLoad_EnvOverridesFile(t *testing.T) {
	resetViper(t)
	configPath := filepath.Join(t.TempDir(), "svcgate.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("api_url: \"https://file.example.com\"\napp_name: file-app\n"), 0644))
	viper.SetConfigFile(configPath)
	require.NoError(t, viper.ReadInConfig())

	t.Setenv("SVCGATE_API_URL", "https://env.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.APIURL)
	assert.Equal(t, "file-app", cfg.AppName)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing api url", map[string]string{}, "api_url is required"},
		{"port out of range", map[string]string{"SVCGATE_API_URL": "http://x", "SVCGATE_SERVER_PORT": "70000"}, "out of range"},
		{"zero interval", map[string]string{"SVCGATE_API_URL": "http://x", "SVCGATE_HEALTH_INTERVAL": "0s"}, "health.interval"},
		{"negative timeout", map[string]string{"SVCGATE_API_URL": "http://x", "SVCGATE_HEALTH_TIMEOUT": "-1s"}, "health.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			t.Setenv("SVCGATE_API_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestContextInjection(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Panics(t, func() { MustFromContext(context.Background()) })

	g := &GlobalConfig{Config: &Config{AppName: "x"}}
	ctx := InjectConfig(context.Background(), g)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, g, got)
	assert.Same(t, g, MustFromContext(ctx))
}
