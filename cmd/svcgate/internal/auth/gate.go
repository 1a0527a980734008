package auth

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/terraconstructs/svcgate/cmd/svcgate/internal/config"
	"github.com/terraconstructs/svcgate/pkg/sdk"
)

// NewGate wires the access gate from the CLI configuration: the on-disk
// store, the acquisition client and the system fingerprint resolver.
// Fatal initialization failures print a terminal error before exiting.
func NewGate(g *config.GlobalConfig) (*sdk.Gate, *FileStore, error) {
	cfg := g.Config

	path := cfg.CachePath
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, nil, err
		}
	}
	store := NewFileStore(nil, path, g.Logger)

	policy, err := sdk.NewAccessPolicy(cfg.AccessExpression)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid authorization.expression: %w", err)
	}

	resolver := sdk.NewFingerprintResolver(cfg.AppName,
		sdk.WithIPLookupURL(cfg.IPLookupURL),
		sdk.WithGeoURLs(cfg.GeoPrimaryURL, cfg.GeoSecondaryURL),
		sdk.WithResolverLogger(g.Logger),
	)
	acquirer := sdk.NewAcquisitionClient(cfg.APIURL,
		sdk.WithAcquisitionLogger(g.Logger),
		sdk.WithAcquisitionMetrics(g.Metrics),
	)

	gate := sdk.NewGate(store, acquirer, resolver,
		sdk.WithAccessPolicy(policy),
		sdk.WithGateLogger(g.Logger),
		sdk.WithGateMetrics(g.Metrics),
		sdk.WithExitFunc(exitWithMessage),
	)
	return gate, store, nil
}

func exitWithMessage(code int) {
	switch sdk.ExitCode(code) {
	case sdk.ExitNoToken:
		pterm.Error.Println("No bearer token provided. Set SVCGATE_TOKEN or pass --token.")
	case sdk.ExitInsufficientPermission:
		pterm.Error.Println("Your account does not have access to this service.")
	case sdk.ExitNoCredential:
		pterm.Error.Println("Could not obtain a credential from the authentication server.")
	default:
		pterm.Error.Println("Unexpected error while checking access.")
	}
	os.Exit(code)
}
