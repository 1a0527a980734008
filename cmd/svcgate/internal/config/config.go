package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/terraconstructs/svcgate/pkg/sdk/telemetry"
)

// EnvPrefix is prepended to every configuration key when read from the
// environment, e.g. server.port becomes SVCGATE_SERVER_PORT.
const EnvPrefix = "SVCGATE"

// Config holds the svcgate configuration.
type Config struct {
	// Bearer token exchanged for a credential. Required by the gate.
	Token string

	// Credential acquisition endpoint
	APIURL string

	// Application name reported in the fingerprint
	AppName string

	// Credential cache file; empty selects ~/.svcgate/token-cache.json
	CachePath string

	// Enable debug logging
	Debug bool

	// Lookup services used to build the fingerprint
	IPLookupURL     string
	GeoPrimaryURL   string
	GeoSecondaryURL string

	// Access policy expression; empty selects the default
	AccessExpression string

	Server ServerConfig
	Health HealthConfig
}

// ServerConfig describes the subordinate server and how it is supervised.
type ServerConfig struct {
	Path        string
	Interpreter string
	Bundled     bool
	Port        int
	Offline     bool

	// Dev selects the unmanaged single launch instead of the restart loop.
	Dev                 bool
	Background          bool
	DisableManagedStart bool

	MaxRestarts  int
	RestartDelay time.Duration
}

// HealthConfig configures the readiness wait.
type HealthConfig struct {
	URLs     []string
	Username string
	Password string
	Interval time.Duration
	// Timeout bounds the whole wait; zero waits until interrupted.
	Timeout time.Duration
}

func setDefaults() {
	viper.SetDefault("app_name", "svcgate")
	viper.SetDefault("debug", false)
	viper.SetDefault("server.bundled", true)
	viper.SetDefault("server.max_restarts", 10)
	viper.SetDefault("server.restart_delay", time.Second)
	viper.SetDefault("health.interval", 250*time.Millisecond)
	viper.SetDefault("health.timeout", time.Duration(0))
}

// Load reads configuration from flags bound to viper, SVCGATE_ environment
// variables and an optional config file already read into viper, in that
// order of precedence, with fallback defaults.
func Load() (*Config, error) {
	setDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	cfg := &Config{
		Token:            viper.GetString("token"),
		APIURL:           viper.GetString("api_url"),
		AppName:          viper.GetString("app_name"),
		CachePath:        viper.GetString("cache_path"),
		Debug:            viper.GetBool("debug"),
		IPLookupURL:      viper.GetString("ip_lookup_url"),
		GeoPrimaryURL:    viper.GetString("geo_primary_url"),
		GeoSecondaryURL:  viper.GetString("geo_secondary_url"),
		AccessExpression: viper.GetString("authorization.expression"),
		Server: ServerConfig{
			Path:                viper.GetString("server.path"),
			Interpreter:         viper.GetString("server.interpreter"),
			Bundled:             viper.GetBool("server.bundled"),
			Port:                viper.GetInt("server.port"),
			Offline:             viper.GetBool("server.offline"),
			Dev:                 viper.GetBool("server.dev"),
			Background:          viper.GetBool("server.background"),
			DisableManagedStart: viper.GetBool("server.disable_managed_start"),
			MaxRestarts:         viper.GetInt("server.max_restarts"),
			RestartDelay:        viper.GetDuration("server.restart_delay"),
		},
		Health: HealthConfig{
			URLs:     splitList(viper.GetStringSlice("health.urls")),
			Username: viper.GetString("health.username"),
			Password: viper.GetString("health.password"),
			Interval: viper.GetDuration("health.interval"),
			Timeout:  viper.GetDuration("health.timeout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required (env: SVCGATE_API_URL)")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Health.Interval <= 0 {
		return fmt.Errorf("health.interval must be positive, got %s", c.Health.Interval)
	}
	if c.Health.Timeout < 0 {
		return fmt.Errorf("health.timeout must not be negative, got %s", c.Health.Timeout)
	}
	if c.Server.MaxRestarts < 0 {
		return fmt.Errorf("server.max_restarts must not be negative, got %d", c.Server.MaxRestarts)
	}
	return nil
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

type contextKey string

const configKey contextKey = "svcgate-config"

// GlobalConfig holds shared state for all svcgate commands.
// This is injected into the cobra command context by the root command's
// PersistentPreRunE hook and consumed by all subcommands.
type GlobalConfig struct {
	Config  *Config
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// InjectConfig adds config to the cobra command context.
func InjectConfig(ctx context.Context, cfg *GlobalConfig) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from the cobra command context.
// Returns (nil, false) if config is not present.
func FromContext(ctx context.Context) (*GlobalConfig, bool) {
	cfg, ok := ctx.Value(configKey).(*GlobalConfig)
	return cfg, ok
}

// MustFromContext retrieves config from context or panics.
// This should only be used in command RunE functions where we know
// the config has been injected by the root command.
func MustFromContext(ctx context.Context) *GlobalConfig {
	cfg, ok := FromContext(ctx)
	if !ok {
		panic("svcgate: config not found in context - this is a bug in svcgate")
	}
	return cfg
}
