package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/terraconstructs/svcgate/cmd/svcgate/cmd/auth"
	"github.com/terraconstructs/svcgate/cmd/svcgate/internal/config"
	"github.com/terraconstructs/svcgate/cmd/svcgate/internal/logging"
	"github.com/terraconstructs/svcgate/pkg/sdk/telemetry"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "svcgate",
	Short: "svcgate - token-gated launcher for a local service",
	Long: `svcgate obtains and caches an access credential for the current user, then
launches and supervises the local service and waits until it answers health checks.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		metrics, err := telemetry.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}

		cmd.SetContext(config.InjectConfig(cmd.Context(), &config.GlobalConfig{
			Config:  cfg,
			Logger:  logging.New(cfg.Debug),
			Metrics: metrics,
		}))
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	flags.String("token", "", "Bearer token exchanged for a credential (env: SVCGATE_TOKEN)")
	flags.String("api-url", "", "Credential endpoint URL (env: SVCGATE_API_URL)")
	flags.String("cache-path", "", "Credential cache file (env: SVCGATE_CACHE_PATH)")
	flags.Bool("debug", false, "Enable debug logging (env: SVCGATE_DEBUG)")

	bindFlag("token", "token")
	bindFlag("api_url", "api-url")
	bindFlag("cache_path", "cache-path")
	bindFlag("debug", "debug")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(auth.AuthCmd)
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("svcgate: bind flag %s: %v", flag, err))
	}
}
