package auth

import (
	"github.com/spf13/cobra"
)

// AuthCmd is the parent command for credential cache operations
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the cached credential",
	Long:  `Commands for inspecting, refreshing and removing the cached access credential.`,
}

func init() {
	AuthCmd.AddCommand(statusCmd)
	AuthCmd.AddCommand(refreshCmd)
	AuthCmd.AddCommand(logoutCmd)
}
