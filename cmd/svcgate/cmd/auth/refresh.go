package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/terraconstructs/svcgate/cmd/svcgate/internal/auth"
	"github.com/terraconstructs/svcgate/cmd/svcgate/internal/config"
	"github.com/terraconstructs/svcgate/pkg/sdk"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Discard the cached credential and acquire a new one",
	RunE: func(cmd *cobra.Command, args []string) error {
		g := config.MustFromContext(cmd.Context())
		if g.Config.Token == "" {
			return sdk.ErrNoBearerToken
		}

		gate, _, err := auth.NewGate(g)
		if err != nil {
			return err
		}

		creds, err := gate.RefreshToken(cmd.Context(), g.Config.Token)
		if err != nil {
			return fmt.Errorf("failed to refresh credential: %w", err)
		}
		if creds == nil {
			return errors.New("credential acquisition failed, see log for details")
		}

		pterm.Success.Println("Credential refreshed")
		if creds.ExpiresAt != nil {
			pterm.Info.Printf("Expires at: %s\n", creds.ExpiresAt.Format(time.RFC1123))
		}
		if !gate.Allows(creds) {
			pterm.Warning.Println("The new credential does not grant access to the service")
		}
		return nil
	},
}
