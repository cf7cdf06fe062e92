package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/projectchat-server/internal/app"
	"github.com/vovakirdan/projectchat-server/internal/auth"
)

var (
	tokenUserID   int64
	tokenUsername string
	tokenRole     string
)

// tokenCmd mints a development token signed with the configured secret.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed access token for a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		token, err := auth.NewJWTResolver(app.JWTConfig(&cfg)).Issue(auth.Identity{
			UserID:   tokenUserID,
			Username: tokenUsername,
			Role:     auth.Role(tokenRole),
		})
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().Int64Var(&tokenUserID, "user-id", 0, "user id")
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "", "display name")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleStudent), "student, instructor or admin")
	_ = tokenCmd.MarkFlagRequired("user-id")
}
