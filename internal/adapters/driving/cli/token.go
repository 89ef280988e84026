package cli

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/formsync/internal/adapters/driven/auth"
	"github.com/custodia-labs/formsync/internal/core/domain"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage access tokens",
	Long: `Issue bearer tokens signed with this relay's server.jwt_secret.

Tokens are meant for development and self-hosted setups where no
identity provider is in front of the relay.`,
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a token for a user",
	Example: `  formsync token issue --user alice --name "Alice Example"
  formsync token issue --ttl 1h`,
	Args: cobra.NoArgs,
	RunE: runTokenIssue,
}

// Flags for token issue.
var (
	tokenUser string
	tokenName string
	tokenTTL  time.Duration
)

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenUser, "user", "", "User ID (random if empty)")
	tokenIssueCmd.Flags().StringVar(&tokenName, "name", "", "Display name shown to other editors")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")

	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenIssue(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if settings.Server.JWTSecret == "" {
		return errors.New(
			"server.jwt_secret is not set; run 'formsync settings server --generate-secret'")
	}

	authority, err := auth.NewAuthority(settings.Server.JWTSecret)
	if err != nil {
		return err
	}

	identity := domain.Identity{
		UserID:      strings.TrimSpace(tokenUser),
		DisplayName: strings.TrimSpace(tokenName),
	}
	if identity.UserID == "" {
		identity.UserID = uuid.NewString()
	}
	if identity.DisplayName == "" {
		identity.DisplayName = identity.UserID
	}

	token, err := authority.Issue(identity, tokenTTL)
	if err != nil {
		return err
	}

	cmd.Println(token)
	return nil
}
