package auth

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/terraconstructs/svcgate/cmd/svcgate/internal/auth"
	"github.com/terraconstructs/svcgate/cmd/svcgate/internal/config"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the cached credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := auth.NewGate(config.MustFromContext(cmd.Context()))
		if err != nil {
			return fmt.Errorf("failed to create credential store: %w", err)
		}

		store.DeleteCredentials()

		fmt.Println("Logged out successfully")
		return nil
	},
}
