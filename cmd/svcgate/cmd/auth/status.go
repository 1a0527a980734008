package auth

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/terraconstructs/svcgate/cmd/svcgate/internal/auth"
	"github.com/terraconstructs/svcgate/cmd/svcgate/internal/config"
	"github.com/terraconstructs/svcgate/pkg/sdk"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display the cached credential status",
	RunE: func(cmd *cobra.Command, args []string) error {
		g := config.MustFromContext(cmd.Context())
		gate, store, err := auth.NewGate(g)
		if err != nil {
			return fmt.Errorf("failed to create credential store: %w", err)
		}

		creds, err := store.LoadCredentials()
		if errors.Is(err, sdk.ErrCacheMiss) {
			pterm.Warning.Printf("No cached credential at %s\n", store.Path())
			return nil
		}
		if err != nil {
			return err
		}

		status := sdk.Status(creds, time.Now())
		pterm.DefaultSection.Println("Credential Status")
		pterm.Info.Printf("Cache file: %s\n", store.Path())
		pterm.Info.Printf("Status: %s\n", status)
		pterm.Info.Printf("Cached at: %s\n", creds.CachedAt.Format(time.RFC1123))
		if creds.ExpiresAt != nil {
			pterm.Info.Printf("Expires at: %s (in %s)\n", creds.ExpiresAt.Format(time.RFC1123), time.Until(*creds.ExpiresAt).Round(time.Second))
		}

		if decoded, err := sdk.DecodeToken(creds.Token); err == nil {
			if claims, err := decoded.Claims(); err == nil {
				if claims.Username != "" {
					pterm.Info.Printf("Username: %s\n", claims.Username)
				}
				if claims.Subject != "" {
					pterm.Info.Printf("Subject: %s\n", claims.Subject)
				}
			}
		}

		pterm.DefaultSection.Println("Access")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "GROUP ACCESS\tNIE USER\tLDAP ENABLED\tALLOWED")
		fmt.Fprintf(w, "%t\t%t\t%t\t%t\n", creds.HasGroupAccess, creds.IsNieUser, creds.IsLdapEnabled, gate.Allows(creds))
		w.Flush()

		return nil
	},
}
