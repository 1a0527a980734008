package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/terraconstructs/svcgate/cmd/svcgate/internal/auth"
	"github.com/terraconstructs/svcgate/cmd/svcgate/internal/config"
	"github.com/terraconstructs/svcgate/pkg/sdk/readiness"
	"github.com/terraconstructs/svcgate/pkg/sdk/supervisor"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check access, launch the service and wait until it is ready",
	Long: `run validates or acquires a credential, launches the subordinate server
unless one is already listening, and blocks until every health URL answers.
It then keeps the server supervised until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := config.MustFromContext(cmd.Context())
		cfg := g.Config

		gate, _, err := auth.NewGate(g)
		if err != nil {
			return err
		}
		// Exits the process with the failure's exit code.
		if _, ok := gate.Initialize(cmd.Context(), cfg.Token, true); !ok {
			return errors.New("access check failed")
		}

		// Shared abort signal for the unmanaged launch and the readiness wait.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := []supervisor.Option{
			supervisor.WithLogger(g.Logger),
			supervisor.WithMetrics(g.Metrics),
		}
		sup := supervisor.New(supervisorConfig(cfg, ""), opts...)

		var supervisorDone <-chan struct{}
		if sup.ShouldInit(ctx) {
			path, err := supervisor.FindServerBinary(cfg.Server.Path, cfg.Server.Bundled)
			if err != nil {
				return err
			}
			sup = supervisor.New(supervisorConfig(cfg, path), opts...)
			if err := sup.Start(ctx); err != nil {
				return err
			}
			// The managed loop does not follow ctx and must be stopped explicitly.
			defer sup.Stop()
			supervisorDone = sup.Done()
		}

		waitCtx := ctx
		if cfg.Health.Timeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, cfg.Health.Timeout)
			defer cancel()
		}
		spinner, _ := pterm.DefaultSpinner.Start("Waiting for service health checks")
		err = readiness.WaitForURLs(waitCtx, cfg.Health.URLs, readiness.Options{
			Interval: cfg.Health.Interval,
			Username: cfg.Health.Username,
			Password: cfg.Health.Password,
			Logger:   g.Logger,
			Metrics:  g.Metrics,
		})
		if err != nil {
			if spinner != nil {
				spinner.Fail("Service did not become ready")
			}
			return fmt.Errorf("waiting for service: %w", err)
		}
		if spinner != nil {
			spinner.Success("Service is ready")
		}

		select {
		case <-ctx.Done():
			g.Logger.Info("shutting down")
			if supervisorDone != nil {
				sup.Stop()
				<-supervisorDone
			}
			return nil
		case <-supervisorDone:
			status := sup.Status()
			return fmt.Errorf("server supervisor exited in state %s (last exit code %d)", status.State, status.LastExitCode)
		}
	},
}

func supervisorConfig(cfg *config.Config, path string) supervisor.Config {
	mode := supervisor.ModeManaged
	if cfg.Server.Dev {
		mode = supervisor.ModeUnmanaged
	}
	target := supervisor.Target{
		Path:        path,
		Bundled:     cfg.Server.Bundled,
		Interpreter: cfg.Server.Interpreter,
		Offline:     cfg.Server.Offline,
	}
	return supervisor.Config{
		Target:              target,
		Mode:                mode,
		MaxRestarts:         cfg.Server.MaxRestarts,
		RestartDelay:        cfg.Server.RestartDelay,
		Port:                cfg.Server.Port,
		BackgroundMode:      cfg.Server.Background,
		DisableManagedStart: cfg.Server.DisableManagedStart,
	}
}

func init() {
	flags := runCmd.Flags()
	flags.String("server-path", "", "Server executable or script (env: SVCGATE_SERVER_PATH)")
	flags.String("interpreter", "", "Interpreter for script targets (env: SVCGATE_SERVER_INTERPRETER)")
	flags.Int("port", 0, "Port probed before launching (env: SVCGATE_SERVER_PORT)")
	flags.Bool("dev", false, "Launch once without restarts (env: SVCGATE_SERVER_DEV)")
	flags.Bool("offline", false, "Do not request a tunnel from script targets (env: SVCGATE_SERVER_OFFLINE)")
	flags.StringSlice("health-url", nil, "Health URL to wait for, repeatable (env: SVCGATE_HEALTH_URLS)")

	for key, flag := range map[string]string{
		"server.path":        "server-path",
		"server.interpreter": "interpreter",
		"server.port":        "port",
		"server.dev":         "dev",
		"server.offline":     "offline",
		"health.urls":        "health-url",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("svcgate: bind flag %s: %v", flag, err))
		}
	}
}
